package script

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edgesql/pkg/batch"
	"github.com/ajitpratap0/edgesql/pkg/chunk"
	"github.com/ajitpratap0/edgesql/pkg/edgesql"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/metrics"
	"github.com/ajitpratap0/edgesql/pkg/observability"
	"github.com/ajitpratap0/edgesql/pkg/retry"
)

// Result summarizes a script run.
type Result struct {
	Statements int
	Groups     int
	Bytes      int64
	Elapsed    time.Duration
}

// Runner executes statements in payload-bounded groups.
type Runner struct {
	endpoint   batch.Endpoint
	maxPayload int
	retry      *retry.Policy
	logger     *zap.Logger
}

// NewRunner creates a runner. Script statements are not wrapped in a
// transaction, so only rate-limit rejections are retried: nothing ran.
func NewRunner(endpoint batch.Endpoint, maxPayloadBytes int, policy *retry.Policy, logger *zap.Logger) (*Runner, error) {
	if err := chunk.ScriptPolicy(maxPayloadBytes).Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid script sizing")
	}
	if policy == nil {
		policy = retry.None()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		endpoint:   endpoint,
		maxPayload: maxPayloadBytes,
		retry:      policy,
		logger:     logger.With(zap.String("component", "script")),
	}, nil
}

// Run executes statements in order and stops at the first failure. The
// returned Result counts the statements that ran before it.
func (r *Runner) Run(ctx context.Context, statements []string) (*Result, error) {
	res := &Result{}
	start := time.Now()
	err := observability.Trace(ctx, "script.run", func(ctx context.Context, span *observability.Span) error {
		err := r.run(ctx, statements, res)
		span.SetAttribute("statements", res.Statements)
		span.SetAttribute("groups", res.Groups)
		return err
	}, attribute.Int("script.statements", len(statements)))
	res.Elapsed = time.Since(start)
	return res, err
}

func (r *Runner) run(ctx context.Context, statements []string, res *Result) error {
	policy := chunk.ScriptPolicy(r.maxPayload)
	planner, err := chunk.NewPlanner(policy)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid script sizing")
	}
	budget := int(float64(policy.MaxPayloadBytes) * policy.SafetyFactor)

	for i := 0; i < len(statements); {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "script cancelled").
				WithDetail("statement", i+1)
		}

		group, size := take(statements[i:], planner.Next(), budget)
		began := time.Now()
		// a group in flight is never cut off; cancellation waits for it
		submit := context.WithoutCancel(ctx)
		_, err := r.retry.Do(submit, func(int) error {
			_, err := r.endpoint.Execute(submit, group)
			return err
		}, func(err error) bool {
			return errors.IsType(err, errors.ErrorTypeRateLimit)
		})
		latency := time.Since(began)

		if err != nil {
			var se *edgesql.StatementError
			if errors.As(err, &se) {
				failed := i + se.Index
				res.Statements += se.Index
				metrics.StatementsExecuted.Add(float64(se.Index))
				return errors.Wrap(err, errors.ErrorTypeQuery, "script statement failed").
					WithDetail("statement", failed+1).
					WithDetail("sql", preview(statements[failed]))
			}
			return errors.Wrap(err, errors.ErrorTypeChunkExecution, "script group failed").
				WithDetail("first_statement", i+1).
				WithDetail("statements", len(group))
		}

		planner.Observe(len(group), size, latency)
		metrics.StatementsExecuted.Add(float64(len(group)))
		res.Statements += len(group)
		res.Groups++
		res.Bytes += int64(size)
		r.logger.Debug("script group executed",
			zap.Int("group", res.Groups),
			zap.Int("statements", len(group)),
			zap.Int("bytes", size),
			zap.Duration("latency", latency))
		i += len(group)
	}
	return nil
}

// take returns up to n statements whose total size fits budget. The first
// statement is always taken so an oversized statement is still sent alone.
func take(statements []string, n, budget int) ([]string, int) {
	size := 0
	k := 0
	for k < len(statements) && k < n {
		s := len(statements[k])
		if k > 0 && size+s > budget {
			break
		}
		size += s
		k++
	}
	return statements[:k], size
}

func preview(stmt string) string {
	const limit = 200
	if len(stmt) <= limit {
		return stmt
	}
	return stmt[:limit] + "..."
}
