// Package edgesql imports tabular data from heterogeneous sources into a
// remote EdgeSQL database reached over its HTTP statement API.
//
// An import reads a source, reconciles its schema with the destination
// table, encodes vector columns, and ships the rows as bounded chunks of
// SQL statements. Each chunk is one transaction. Chunks that fail after
// their retries are counted and reported, while chunks already committed
// stay committed.
//
// # Architecture
//
// The import path is a straight line through a handful of packages:
//
//	pkg/source       - Reader interface, registry and shared type inference
//	pkg/schema       - Source and target schemas, reconciliation, DDL
//	pkg/vector       - Vector parsing and F32/F64 blob encoding
//	pkg/chunk        - Payload-aware adaptive chunk planner
//	pkg/batch        - Statement rendering and transactional execution
//	internal/importer - Orchestrates one import end to end
//
// Supporting packages:
//
//	pkg/edgesql       - HTTP client for the EdgeSQL statement API
//	pkg/script        - SQL script splitting and grouped execution
//	pkg/config        - YAML configuration with environment overrides
//	pkg/errors        - Typed errors shared by every component
//	pkg/retry         - Exponential backoff for retryable errors
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus counters and histograms
//	pkg/observability - OpenTelemetry tracing
//
// # Sources
//
// Source kinds register themselves on import:
//   - file: CSV, TSV, XLSX, Avro and Parquet, local or from S3/GCS/HTTP,
//     optionally gzip/zstd/lz4/snappy compressed
//   - relational: PostgreSQL, MySQL, SQLite and Snowflake tables
//   - dataset: files from Kaggle datasets
//   - replica: tables in a libSQL replica over the hrana pipeline protocol
//
// # Quick Start
//
//	import (
//	    "github.com/ajitpratap0/edgesql/internal/importer"
//	    "github.com/ajitpratap0/edgesql/pkg/config"
//	    "github.com/ajitpratap0/edgesql/pkg/edgesql"
//	    "github.com/ajitpratap0/edgesql/pkg/source"
//	    _ "github.com/ajitpratap0/edgesql/pkg/source/file"
//	)
//
//	cfg := config.NewConfig()
//	cfg.Endpoint.Token = os.Getenv("EDGESQL_TOKEN")
//	client := edgesql.NewClient(cfg, log).WithDatabase("1234")
//
//	im, _ := importer.New(cfg, client, log)
//	res, err := im.Run(ctx, importer.Request{
//	    Source: source.Spec{Kind: source.KindFile, Location: "people.csv"},
//	    Table:  "people",
//	})
//
// The edgesql command wraps the same flow:
//
//	edgesql import file people.csv people --vector embedding:384
//	edgesql read dump.sql
//	edgesql query "SELECT count(*) FROM people"
package edgesql
