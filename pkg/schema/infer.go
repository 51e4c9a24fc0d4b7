package schema

import (
	"strings"
	"time"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/vector"
)

type columnStats struct {
	nulls   int
	ints    int
	reals   int
	texts   int
	blobs   int
	vectors int
	// dim of the first non-null vector value
	dim int
	// first sampled row whose vector length differs from dim
	oddRow int
	oddDim int
}

func (s *columnStats) nonNull() int {
	return s.ints + s.reals + s.texts + s.blobs + s.vectors
}

// Inferrer derives a SourceSchema from declared types and a bounded sample
// of rows. Declared types win; value shapes fill in the rest.
type Inferrer struct {
	names    []string
	declared []*ColumnDescriptor
	stats    []columnStats
	rows     int
	err      error
}

// NewInferrer creates an inferrer for the given column names.
func NewInferrer(names []string) *Inferrer {
	return &Inferrer{
		names:    names,
		declared: make([]*ColumnDescriptor, len(names)),
		stats:    make([]columnStats, len(names)),
	}
}

// Declare fixes the type of column i. A vector with Dim 0 takes its
// dimension from the first non-null sampled value.
func (in *Inferrer) Declare(i int, t ColumnType, nullable bool, declared string) {
	if i < 0 || i >= len(in.names) {
		return
	}
	in.declared[i] = &ColumnDescriptor{Name: in.names[i], Type: t, Nullable: nullable, Declared: declared}
}

// DeclareVector marks the named column as a vector with an explicit
// dimension. It returns false if no such column exists.
func (in *Inferrer) DeclareVector(name string, dim int) bool {
	for i, n := range in.names {
		if strings.EqualFold(n, name) {
			nullable := true
			if d := in.declared[i]; d != nil {
				nullable = d.Nullable
			}
			in.Declare(i, Vector(dim), nullable, "vector")
			return true
		}
	}
	return false
}

// Observe records one sampled row.
func (in *Inferrer) Observe(row []any) {
	if in.err != nil {
		return
	}
	in.rows++
	if len(row) != len(in.names) {
		in.err = errors.Newf(errors.ErrorTypeSchemaInference,
			"row %d has %d values, expected %d", in.rows, len(row), len(in.names)).
			WithDetail("row", in.rows)
		return
	}
	for i, v := range row {
		if err := in.stats[i].observe(v, in.rows); err != nil {
			in.err = errors.Wrap(err, errors.ErrorTypeSchemaInference, "cannot classify value").
				WithDetail("row", in.rows).
				WithDetail("column", in.names[i])
			return
		}
	}
}

func (s *columnStats) observe(v any, row int) error {
	switch val := v.(type) {
	case nil:
		s.nulls++
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		s.ints++
	case float32, float64:
		s.reals++
	case string:
		if vector.LooksLikeVector(val) {
			s.vector(val, row)
		} else {
			s.texts++
		}
	case []byte:
		s.blobs++
	case time.Time:
		s.texts++
	case []float32, []float64, []any:
		s.vector(val, row)
	default:
		return errors.Newf(errors.ErrorTypeValidation, "unsupported value type %T", v)
	}
	return nil
}

func (s *columnStats) vector(v any, row int) {
	dim, err := vector.Dim(v)
	if err != nil {
		s.texts++
		return
	}
	s.vectors++
	switch {
	case s.dim == 0:
		s.dim = dim
	case dim != s.dim && s.oddRow == 0:
		s.oddRow, s.oddDim = row, dim
	}
}

// Schema returns the inferred schema.
func (in *Inferrer) Schema() (*SourceSchema, error) {
	if in.err != nil {
		return nil, in.err
	}
	if len(in.names) == 0 {
		return nil, errors.New(errors.ErrorTypeSchemaInference, "source has no columns")
	}

	seen := make(map[string]bool, len(in.names))
	out := &SourceSchema{Columns: make([]ColumnDescriptor, len(in.names))}
	for i, name := range in.names {
		if strings.TrimSpace(name) == "" {
			return nil, errors.Newf(errors.ErrorTypeSchemaInference, "column %d has no name", i+1).
				WithDetail("column_index", i)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, errors.Newf(errors.ErrorTypeSchemaInference, "duplicate column %q", name).
				WithDetail("column", name)
		}
		seen[key] = true

		st := in.stats[i]
		col := ColumnDescriptor{Name: name, Nullable: st.nulls > 0}
		if d := in.declared[i]; d != nil {
			col.Type = d.Type
			col.Declared = d.Declared
			col.Nullable = col.Nullable || d.Nullable
		} else {
			col.Type = st.infer()
		}

		if col.Type.Kind == KindVector && col.Type.Dim == 0 {
			if st.dim == 0 {
				return nil, errors.Newf(errors.ErrorTypeSchemaInference,
					"vector column %q has no values to take a dimension from", name).
					WithDetail("column", name)
			}
			if st.oddRow > 0 {
				return nil, errors.Newf(errors.ErrorTypeVectorDimension,
					"vector column %q has sampled values of dimension %d and %d", name, st.dim, st.oddDim).
					WithDetail("row", st.oddRow).
					WithDetail("column", name).
					WithDetail("expected_dim", st.dim).
					WithDetail("actual_dim", st.oddDim)
			}
			col.Type.Dim = st.dim
		}
		out.Columns[i] = col
	}
	return out, nil
}

func (s columnStats) infer() ColumnType {
	n := s.nonNull()
	switch {
	case n == 0:
		return Text
	case s.vectors == n && s.oddRow == 0:
		return Vector(s.dim)
	case s.blobs == n:
		return Blob
	case s.texts > 0 || s.blobs > 0 || s.vectors > 0:
		return Text
	case s.reals > 0:
		return Real
	}
	return Integer
}
