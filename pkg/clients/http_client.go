// Package clients provides the HTTP client shared by the EdgeSQL, Kaggle and
// replica connectors: an HTTP/2-capable transport guarded by a circuit
// breaker and a limiter that honors server Retry-After pauses.
package clients

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/metrics"
)

// UserAgent is sent on every request.
const UserAgent = "edgesql-go/1.0"

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Name labels metrics and logs
	Name string

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	EnableHTTP2         bool

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	KeepAlive           time.Duration
	// RequestTimeout bounds a single attempt, including reading the body
	RequestTimeout time.Duration

	RateLimit float64
	RateBurst int

	CircuitBreakerEnabled bool
	FailureThreshold      int
	SuccessThreshold      int
	Timeout               time.Duration
}

// HTTPConfigFrom derives client settings from the shared configuration.
func HTTPConfigFrom(name string, cfg *config.Config) *HTTPConfig {
	return &HTTPConfig{
		Name:                  name,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       cfg.Timeouts.Idle,
		EnableHTTP2:           true,
		DialTimeout:           cfg.Timeouts.Connection,
		TLSHandshakeTimeout:   cfg.Timeouts.Connection,
		KeepAlive:             cfg.Timeouts.KeepAlive,
		RequestTimeout:        cfg.Timeouts.Request,
		RateLimit:             float64(cfg.Reliability.RateLimitPerSec),
		RateBurst:             cfg.Reliability.RateLimitPerSec,
		CircuitBreakerEnabled: cfg.Reliability.CircuitBreaker,
		FailureThreshold:      5,
		SuccessThreshold:      1,
		Timeout:               cfg.Reliability.MaxRetryDelay,
	}
}

// HTTPClient wraps http.Client with rate limiting and a circuit breaker.
type HTTPClient struct {
	config         *HTTPConfig
	logger         *zap.Logger
	httpClient     *http.Client
	transport      *http.Transport
	circuitBreaker *CircuitBreaker
	limiter        *Limiter

	totalRequests  int64
	failedRequests int64
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client"), zap.String("client", config.Name)),
	}

	client.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(client.transport); err != nil {
			client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	client.httpClient = &http.Client{
		Transport: client.transport,
		Timeout:   config.RequestTimeout,
	}

	client.limiter = NewLimiter(config.RateLimit, config.RateBurst)

	if config.CircuitBreakerEnabled {
		client.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: config.FailureThreshold,
			SuccessThreshold: config.SuccessThreshold,
			Timeout:          config.Timeout,
		}, logger)
	}

	return client
}

// Do performs an HTTP request. Transport failures are returned as
// structured errors classified by Classify.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := c.limiter.Wait(ctx); err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, Classify(ctx, err)
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, errors.New(errors.ErrorTypeConnection, "circuit breaker open").
			WithDetail("client", c.config.Name)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}

	atomic.AddInt64(&c.totalRequests, 1)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode/100) + "xx"
	}
	metrics.HTTPRequestDuration.WithLabelValues(c.config.Name, req.Method, status).Observe(time.Since(start).Seconds())

	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordFailure()
		}
		return nil, Classify(ctx, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if d := RetryAfter(resp.Header, time.Now(), c.config.Timeout); d > 0 {
			c.logger.Warn("rate limited by server", zap.Duration("retry_after", d))
			c.limiter.Pause(d)
		}
	}

	if c.circuitBreaker != nil {
		if resp.StatusCode >= 500 {
			c.circuitBreaker.RecordFailure()
		} else {
			c.circuitBreaker.RecordSuccess()
		}
	}
	return resp, nil
}

// ReadBody reads and closes a response body, classifying read failures
// the same way as request failures.
func (c *HTTPClient) ReadBody(ctx context.Context, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(ctx, err)
	}
	return data, nil
}

// Classify maps a transport error onto a structured error type. A
// cancelled parent context is not retryable; deadlines and network
// timeouts are TransportTimeout; other network failures are Connection.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var se *errors.Error
	if stderrors.As(err, &se) {
		return err
	}
	if ctx != nil && stderrors.Is(ctx.Err(), context.Canceled) {
		return errors.Wrap(err, errors.ErrorTypeInternal, "request cancelled")
	}

	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrap(err, errors.ErrorTypeTransportTimeout, "request timed out")
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
}

// StatusError classifies a non-2xx response. 408, 429 and 5xx are
// retryable; everything else is final.
func StatusError(code int, message string) *errors.Error {
	var errType errors.ErrorType
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		errType = errors.ErrorTypeTransportTimeout
	case code == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case code >= 500:
		errType = errors.ErrorTypeConnection
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	case code == http.StatusNotFound:
		errType = errors.ErrorTypeNotFound
	default:
		errType = errors.ErrorTypeQuery
	}
	if message == "" {
		message = http.StatusText(code)
	}
	return errors.New(errType, message).WithDetail("status", code)
}

// Stats returns total and failed request counts.
func (c *HTTPClient) Stats() (total, failed int64) {
	return atomic.LoadInt64(&c.totalRequests), atomic.LoadInt64(&c.failedRequests)
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
