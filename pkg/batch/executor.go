// Package batch turns a chunk of rows into one transactional statement
// group and submits it, retrying transport failures.
//
// A chunk is all-or-nothing: the group is BEGIN TRANSACTION, the inserts,
// then COMMIT, sent in a single request. A statement the service rejects
// is never retried; a timeout or dropped connection is, up to the retry
// policy's attempt limit.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/edgesql"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/logger"
	"github.com/ajitpratap0/edgesql/pkg/observability"
	"github.com/ajitpratap0/edgesql/pkg/retry"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

// Endpoint executes a statement group remotely. *edgesql.Client
// implements it.
type Endpoint interface {
	Execute(ctx context.Context, statements []string) ([]edgesql.StatementResult, error)
}

// Chunk is a contiguous run of source rows written with one schema.
// FirstRow is the number of source rows before this chunk.
type Chunk struct {
	Index    int
	FirstRow int64
	Rows     []source.Row
	Schema   *schema.TargetSchema
}

// Outcome reports a committed or failed chunk. PartialCommit is always
// false: a chunk commits entirely or not at all.
type Outcome struct {
	RowsCommitted int
	Bytes         int
	Attempts      int
	Latency       time.Duration
	PartialCommit bool
}

// Options control statement rendering.
type Options struct {
	// MultiRowInsert emits one INSERT with a VALUES tuple per row
	MultiRowInsert bool
	// VectorLiteral sends vectors as vector('[..]') instead of blobs
	VectorLiteral bool
}

// OptionsFromConfig reads rendering options from the import section.
func OptionsFromConfig(ic config.ImportConfig) Options {
	return Options{MultiRowInsert: ic.MultiRowInsert, VectorLiteral: ic.VectorLiteral}
}

// Executor submits chunks.
type Executor struct {
	endpoint Endpoint
	retry    *retry.Policy
	opts     Options
	logger   *zap.Logger
}

// NewExecutor creates an executor. A nil policy means a single attempt.
func NewExecutor(endpoint Endpoint, policy *retry.Policy, opts Options, logger *zap.Logger) *Executor {
	if policy == nil {
		policy = retry.None()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		endpoint: endpoint,
		retry:    policy,
		opts:     opts,
		logger:   logger.With(zap.String("component", "batch_executor")),
	}
}

// Execute renders and submits c. The returned Outcome is never nil; on
// failure it carries the attempts made and RowsCommitted is zero.
//
// Cancelling ctx does not abort a chunk in flight: the group may already
// be committed remotely, so submission and its retries run to completion
// and each attempt stays bounded by the HTTP client's request timeout.
// Callers check ctx between chunks.
func (e *Executor) Execute(ctx context.Context, c *Chunk) (*Outcome, error) {
	outcome := &Outcome{}

	stmts, size, err := e.Render(c)
	if err != nil {
		return outcome, err
	}
	outcome.Bytes = size

	start := time.Now()
	err = observability.Trace(ctx, "batch.execute", func(ctx context.Context, span *observability.Span) error {
		submit := context.WithoutCancel(ctx)
		attempts, err := e.retry.Do(submit, func(attempt int) error {
			if attempt > 1 {
				logger.FromContext(ctx, e.logger).Debug("retrying chunk",
					zap.Int("chunk", c.Index),
					zap.Int("attempt", attempt))
			}
			_, err := e.endpoint.Execute(submit, stmts)
			return err
		}, nil)
		outcome.Attempts = attempts
		span.SetAttribute("attempts", attempts)
		return err
	},
		attribute.Int("chunk.index", c.Index),
		attribute.Int("chunk.rows", len(c.Rows)),
		attribute.Int("chunk.bytes", size),
	)
	outcome.Latency = time.Since(start)

	if err != nil {
		return outcome, e.chunkError(c, outcome, err)
	}
	outcome.RowsCommitted = len(c.Rows)
	return outcome, nil
}

func (e *Executor) chunkError(c *Chunk, outcome *Outcome, err error) error {
	var stmtErr *edgesql.StatementError
	if errors.As(err, &stmtErr) {
		ce := errors.Wrap(err, errors.ErrorTypeChunkExecution, fmt.Sprintf("chunk %d rejected", c.Index)).
			WithDetail("chunk", c.Index).
			WithDetail("statement", stmtErr.Index)
		if !e.opts.MultiRowInsert && stmtErr.Index >= 1 && stmtErr.Index <= len(c.Rows) {
			ce.WithDetail("row", c.FirstRow+int64(stmtErr.Index))
		}
		return ce
	}

	return errors.Wrap(err, errors.ErrorTypeChunkExecution, fmt.Sprintf("chunk %d failed after %d attempts", c.Index, outcome.Attempts)).
		WithDetail("chunk", c.Index).
		WithDetail("attempts", outcome.Attempts)
}
