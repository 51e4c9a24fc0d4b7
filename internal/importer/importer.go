// Package importer drives a data import: it opens a source, reconciles its
// schema with the target table, creates the table when needed and then
// streams the rows through adaptively sized chunks.
//
// # Basic Usage
//
//	im, err := importer.New(cfg, client, logger)
//	res, err := im.Run(ctx, importer.Request{
//	    Source: source.Spec{Kind: source.KindFile, Location: "people.csv"},
//	    Table:  "people",
//	})
//	fmt.Println(res.RowsCommitted)
//
// Chunks run one at a time. A failed chunk stops the import; every chunk
// before it stays committed and is counted in the Result, which is
// returned even when the run fails.
package importer

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edgesql/pkg/batch"
	"github.com/ajitpratap0/edgesql/pkg/chunk"
	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/logger"
	"github.com/ajitpratap0/edgesql/pkg/metrics"
	"github.com/ajitpratap0/edgesql/pkg/observability"
	"github.com/ajitpratap0/edgesql/pkg/retry"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
	"github.com/ajitpratap0/edgesql/pkg/vector"
)

// Target is the remote side of an import. *edgesql.Client implements it.
type Target interface {
	batch.Endpoint
	DescribeTable(ctx context.Context, table string) (*schema.TargetSchema, error)
}

// Request describes one import.
type Request struct {
	Source source.Spec
	Table  string
	// Reader overrides the registry lookup for Source
	Reader source.Reader
	// Policy overrides the configured chunk policy
	Policy *chunk.Policy
}

// Plan is fixed once the schema is reconciled.
type Plan struct {
	Source source.Spec
	Table  string
	Target *schema.TargetSchema
	Policy chunk.Policy
}

// Result summarizes an import. RowsCommitted counts only rows in
// committed chunks.
type Result struct {
	ImportID        string
	Plan            *Plan
	RowsCommitted   int64
	ChunksAttempted int
	ChunksCommitted int
	ChunksFailed    int
	Retries         int
	BytesSent       int64
	Elapsed         time.Duration
	Err             error
}

// Importer runs imports against one target. Independent Run calls may
// proceed concurrently; they share only the read-only configuration.
type Importer struct {
	cfg        *config.Config
	target     Target
	executor   *batch.Executor
	reconciler schema.Reconciler
	logger     *zap.Logger
}

// New creates an importer.
func New(cfg *config.Config, target Target, log *zap.Logger) (*Importer, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if log == nil {
		log = logger.Get()
	}
	format, err := vector.ParseFormat(cfg.Import.VectorFormat)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid vector format")
	}

	return &Importer{
		cfg:        cfg,
		target:     target,
		executor:   batch.NewExecutor(target, retry.FromConfig(cfg.Reliability), batch.OptionsFromConfig(cfg.Import), log),
		reconciler: schema.Reconciler{VectorFormat: format},
		logger:     log.With(zap.String("component", "importer")),
	}, nil
}

// Run performs the import described by req. The Result is always
// returned; its Err matches the returned error.
func (im *Importer) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{ImportID: uuid.NewString()}
	kind := string(req.Source.Kind)

	ctx = logger.WithImport(ctx, res.ImportID, req.Table, req.Source.String())
	log := logger.FromContext(ctx, im.logger)

	err := observability.Trace(ctx, "import.run", func(ctx context.Context, span *observability.Span) error {
		err := im.run(ctx, req, res, log)
		span.SetAttribute("rows_committed", res.RowsCommitted)
		span.SetAttribute("chunks_committed", res.ChunksCommitted)
		span.SetAttribute("retries", res.Retries)
		return err
	},
		attribute.String("import.id", res.ImportID),
		attribute.String("import.table", req.Table),
		attribute.String("import.source", kind),
	)

	res.Err = err
	res.Elapsed = time.Since(start)

	fields := []zap.Field{
		zap.Int64("rows_committed", res.RowsCommitted),
		zap.Int("chunks_committed", res.ChunksCommitted),
		zap.Int("chunks_failed", res.ChunksFailed),
		zap.Int("retries", res.Retries),
		zap.Int64("bytes_sent", res.BytesSent),
		zap.Duration("elapsed", res.Elapsed),
	}
	if err != nil {
		log.Error("import failed", append(fields, logger.ErrorFields(err)...)...)
	} else {
		log.Info("import completed", fields...)
	}
	return res, err
}

func (im *Importer) run(ctx context.Context, req Request, res *Result, log *zap.Logger) error {
	if req.Table == "" {
		return errors.New(errors.ErrorTypeValidation, "target table is required")
	}

	policy := chunk.PolicyFromConfig(im.cfg.Import)
	if req.Policy != nil {
		policy = *req.Policy
	}
	planner, err := chunk.NewPlanner(policy)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid chunk policy")
	}

	reader := req.Reader
	if reader == nil {
		if reader, err = source.New(req.Source, im.cfg); err != nil {
			return err
		}
	}

	srcSchema, rows, err := reader.Open(ctx)
	if err != nil {
		if errors.GetType(err) == "" {
			err = source.Unavailable(err, req.Source, "failed to open source")
		}
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn("failed to close source", zap.Error(cerr))
		}
	}()

	existing, err := im.target.DescribeTable(ctx, req.Table)
	if err != nil {
		return err
	}
	target, err := im.reconciler.Reconcile(req.Table, srcSchema, existing)
	if err != nil {
		return err
	}
	res.Plan = &Plan{Source: req.Source, Table: req.Table, Target: target, Policy: policy}

	if !target.Exists {
		ddl := schema.CreateTableSQL(target)
		log.Info("creating table", zap.String("ddl", ddl))
		if _, err := retry.FromConfig(im.cfg.Reliability).Do(ctx, func(int) error {
			_, err := im.target.Execute(ctx, []string{ddl})
			return err
		}, nil); err != nil {
			return errors.Wrap(err, errors.ErrorTypeChunkExecution, "failed to create table").
				WithDetail("table", req.Table)
		}
	}

	return im.stream(ctx, rows, res, planner, log)
}

func (im *Importer) stream(ctx context.Context, rows source.RowSequence, res *Result, planner *chunk.Planner, log *zap.Logger) error {
	kind := string(res.Plan.Source.Kind)
	var firstRow int64

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "import cancelled").
				WithDetail("chunk", index)
		}

		size := planner.Next()
		buf, eof, err := readRows(ctx, rows, size)
		if err != nil {
			if errors.GetType(err) == "" {
				err = source.Unavailable(err, res.Plan.Source, "failed to read source")
			}
			return errors.Wrap(err, errors.GetType(err), "source read failed").
				WithDetail("row", firstRow+int64(len(buf))+1)
		}
		if len(buf) == 0 {
			return nil
		}

		c := &batch.Chunk{Index: index, FirstRow: firstRow, Rows: buf, Schema: res.Plan.Target}
		res.ChunksAttempted++
		outcome, err := im.executor.Execute(ctx, c)

		res.Retries += max(outcome.Attempts-1, 0)
		res.BytesSent += int64(outcome.Bytes)
		metrics.ChunkRows.WithLabelValues(kind).Observe(float64(len(buf)))
		metrics.PayloadBytes.WithLabelValues(kind).Add(float64(outcome.Bytes))
		if outcome.Attempts > 1 {
			metrics.ChunkRetries.WithLabelValues(kind).Add(float64(outcome.Attempts - 1))
		}

		if err != nil {
			res.ChunksFailed++
			metrics.Chunks.WithLabelValues(kind, "failed").Inc()
			metrics.ChunkDuration.WithLabelValues(kind, "failed").Observe(outcome.Latency.Seconds())
			return err
		}

		res.ChunksCommitted++
		res.RowsCommitted += int64(outcome.RowsCommitted)
		metrics.Chunks.WithLabelValues(kind, "committed").Inc()
		metrics.ChunkDuration.WithLabelValues(kind, "committed").Observe(outcome.Latency.Seconds())
		metrics.RowsCommitted.WithLabelValues(kind, res.Plan.Table).Add(float64(outcome.RowsCommitted))

		planner.Observe(len(buf), outcome.Bytes, outcome.Latency)
		firstRow += int64(len(buf))

		log.Debug("chunk committed",
			zap.Int("chunk", index),
			zap.Int("rows", len(buf)),
			zap.Int("bytes", outcome.Bytes),
			zap.Int("attempts", outcome.Attempts),
			zap.Duration("latency", outcome.Latency),
			zap.Int("next_size", planner.Next()),
			zap.Int64("rows_committed", res.RowsCommitted))

		if eof {
			return nil
		}
	}
}

// readRows pulls up to n rows. eof reports that the sequence is exhausted.
func readRows(ctx context.Context, rows source.RowSequence, n int) ([]source.Row, bool, error) {
	buf := make([]source.Row, 0, n)
	for len(buf) < n {
		row, err := rows.Next(ctx)
		if err == io.EOF {
			return buf, true, nil
		}
		if err != nil {
			return buf, false, err
		}
		buf = append(buf, row)
	}
	return buf, false, nil
}
