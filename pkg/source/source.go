// Package source defines the readers the import engine pulls rows from and
// the registry that builds them from a Spec.
//
// A Reader opens once and yields a SourceSchema plus a lazy, single-pass
// RowSequence. Kinds live in subpackages (file, relational, kaggle,
// replica) and register themselves on import:
//
//	import _ "github.com/ajitpratap0/edgesql/pkg/source/file"
//
//	r, err := source.New(source.Spec{Kind: source.KindFile, Location: "people.csv"}, cfg)
//	sch, rows, err := r.Open(ctx)
//	defer rows.Close()
package source

import (
	"context"
	"strconv"
	"strings"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/schema"
)

// Kind names a family of sources.
type Kind string

const (
	KindFile       Kind = "file"
	KindRelational Kind = "relational"
	KindDataset    Kind = "dataset"
	KindReplica    Kind = "replica"
)

// Option keys understood by more than one kind.
const (
	// OptionVector declares vector columns: "col:dim,col2:dim"
	OptionVector = "vector"
	// OptionDelimiter overrides the CSV field delimiter
	OptionDelimiter = "delimiter"
	// OptionSheet selects a spreadsheet sheet
	OptionSheet = "sheet"
	// OptionDSN is a driver connection string for relational sources
	OptionDSN = "dsn"
	// OptionDatabase names the database for relational sources
	OptionDatabase = "database"
	// OptionURL and OptionToken override replica credentials
	OptionURL   = "url"
	OptionToken = "token"
	// OptionEncryptionKey is the replica encryption key
	OptionEncryptionKey = "encryption_key"
)

// Spec identifies a source. Location and Table are interpreted by the kind.
type Spec struct {
	Kind     Kind
	Location string
	Table    string
	Options  map[string]string
}

// Option returns the named option or def.
func (s Spec) Option(key, def string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// DeclaredVectors parses the vector option into column → dimension.
func (s Spec) DeclaredVectors() (map[string]int, error) {
	raw := s.Option(OptionVector, "")
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]int)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dimText, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "invalid vector declaration %q, want column:dim", part)
		}
		dim, err := strconv.Atoi(strings.TrimSpace(dimText))
		if err != nil || dim < 1 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "invalid dimension in vector declaration %q", part)
		}
		out[name] = dim
	}
	return out, nil
}

func (s Spec) String() string {
	if s.Table != "" {
		return string(s.Kind) + ":" + s.Location + "/" + s.Table
	}
	return string(s.Kind) + ":" + s.Location
}

// Row holds one record's values aligned with the source schema. Values are
// nil, int64, float64, bool, string, []byte, time.Time, []float32 or
// []float64. A yielded Row is never modified.
type Row []any

// Reader opens a source.
type Reader interface {
	Open(ctx context.Context) (*schema.SourceSchema, RowSequence, error)
}

// RowSequence yields rows lazily. Next returns io.EOF when exhausted.
type RowSequence interface {
	Next(ctx context.Context) (Row, error)
	Close() error
}

// Unavailable wraps err as a SourceUnavailable error naming the source.
func Unavailable(err error, spec Spec, message string) *errors.Error {
	var e *errors.Error
	if err == nil {
		e = errors.New(errors.ErrorTypeSourceUnavailable, message)
	} else {
		e = errors.Wrap(err, errors.ErrorTypeSourceUnavailable, message)
	}
	return e.WithDetail("source", spec.String())
}
