// Package file reads tabular files: CSV/TSV, XLSX, Avro object container
// files and Parquet. Locations are local paths, file:// URLs, s3://bucket/key
// or gs://bucket/object. A trailing .gz, .zst, .lz4, .s2 or .sz suffix is
// decompressed transparently.
package file

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/edgesql/pkg/compression"
	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

// OptionFormat forces a format instead of using the file extension.
const OptionFormat = "format"

// Format is a supported file layout.
type Format string

const (
	CSV     Format = "csv"
	TSV     Format = "tsv"
	XLSX    Format = "xlsx"
	Avro    Format = "avro"
	Parquet Format = "parquet"
)

func init() {
	source.Register(source.KindFile, New)
}

// declared is a column type known from the file's own schema.
type declared struct {
	Type schema.ColumnType
	Name string
}

// table is an opened file before inference.
type table struct {
	names []string
	types []*declared
	rows  source.RowSequence
}

// Reader reads one file.
type Reader struct {
	spec source.Spec
	cfg  *config.Config
}

// New creates a file reader.
func New(spec source.Spec, cfg *config.Config) (source.Reader, error) {
	if strings.TrimSpace(spec.Location) == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "file source needs a path")
	}
	return &Reader{spec: spec, cfg: cfg}, nil
}

// Open fetches the file and infers its schema.
func (r *Reader) Open(ctx context.Context) (*schema.SourceSchema, source.RowSequence, error) {
	body, name, err := fetch(ctx, r.spec.Location, r.cfg.Sources.Objects)
	if err != nil {
		return nil, nil, source.Unavailable(err, r.spec, "failed to open file")
	}
	return Read(ctx, r.spec, r.cfg, body, name)
}

// Read parses body as the file called name. It takes ownership of body,
// which is closed with the returned sequence or on error.
func Read(ctx context.Context, spec source.Spec, cfg *config.Config, body io.ReadCloser, name string) (*schema.SourceSchema, source.RowSequence, error) {
	alg, inner := compression.Detect(name)
	dec, err := compression.NewReader(body, alg)
	if err != nil {
		body.Close()
		return nil, nil, source.Unavailable(err, spec, "failed to decompress file")
	}
	stream := &multiCloser{Reader: dec, closers: []io.Closer{dec, body}}

	format, err := formatOf(inner, spec.Option(OptionFormat, ""))
	if err != nil {
		stream.Close()
		return nil, nil, err
	}

	t, err := openTable(ctx, format, stream, spec)
	if err != nil {
		stream.Close()
		if errors.GetType(err) == "" {
			err = source.Unavailable(err, spec, "failed to read "+string(format)+" file")
		}
		return nil, nil, err
	}

	in := schema.NewInferrer(t.names)
	for i, d := range t.types {
		if d != nil {
			in.Declare(i, d.Type, true, d.Name)
		}
	}
	return source.InferSchema(ctx, in, spec, t.rows, cfg.Import.SampleRows)
}

func openTable(ctx context.Context, format Format, stream io.ReadCloser, spec source.Spec) (*table, error) {
	switch format {
	case CSV, TSV:
		def := ','
		if format == TSV {
			def = '\t'
		}
		delim, err := parseDelimiter(spec.Option(source.OptionDelimiter, ""), def)
		if err != nil {
			return nil, err
		}
		return openCSV(stream, delim)
	case XLSX:
		return openXLSX(stream, spec.Option(source.OptionSheet, ""))
	case Avro:
		return openAvro(stream)
	case Parquet:
		return openParquet(ctx, stream)
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported file format %q", format)
}

func formatOf(name, forced string) (Format, error) {
	ext := forced
	if ext == "" {
		ext = filepath.Ext(name)
	}
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv", "txt":
		return CSV, nil
	case "tsv", "tab":
		return TSV, nil
	case "xlsx", "xlsm":
		return XLSX, nil
	case "avro":
		return Avro, nil
	case "parquet", "pq":
		return Parquet, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "cannot determine file format of %q", name).
		WithDetail("formats", []Format{CSV, TSV, XLSX, Avro, Parquet})
}
