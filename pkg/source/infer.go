package source

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/schema"
)

// DefaultSampleRows bounds the rows inspected for type inference.
const DefaultSampleRows = 1000

// InferSchema peeks up to sampleRows rows from seq and completes the
// schema with in. Vector columns declared on the spec override both
// declared and inferred types. The returned sequence replays the peeked
// rows before the rest; on error seq is closed.
func InferSchema(ctx context.Context, in *schema.Inferrer, spec Spec, seq RowSequence, sampleRows int) (*schema.SourceSchema, RowSequence, error) {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}

	vectors, err := spec.DeclaredVectors()
	if err != nil {
		seq.Close()
		return nil, nil, err
	}
	for name, dim := range vectors {
		if !in.DeclareVector(name, dim) {
			seq.Close()
			return nil, nil, errors.Newf(errors.ErrorTypeSchemaInference, "declared vector column %q not found in source", name).
				WithDetail("column", name)
		}
	}

	peeked := make([]Row, 0, min(sampleRows, 1024))
	for len(peeked) < sampleRows {
		row, err := seq.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			seq.Close()
			return nil, nil, err
		}
		in.Observe(row)
		peeked = append(peeked, row)
	}

	sch, err := in.Schema()
	if err != nil {
		seq.Close()
		return nil, nil, err
	}
	return sch, &replaySequence{buffered: peeked, rest: seq}, nil
}

type replaySequence struct {
	buffered []Row
	pos      int
	rest     RowSequence
}

func (r *replaySequence) Next(ctx context.Context) (Row, error) {
	if r.pos < len(r.buffered) {
		row := r.buffered[r.pos]
		r.buffered[r.pos] = nil
		r.pos++
		return row, nil
	}
	return r.rest.Next(ctx)
}

func (r *replaySequence) Close() error {
	return r.rest.Close()
}

// SliceSequence yields rows from memory.
type SliceSequence struct {
	rows []Row
	pos  int
}

// NewSliceSequence creates a sequence over rows.
func NewSliceSequence(rows []Row) *SliceSequence {
	return &SliceSequence{rows: rows}
}

// Next returns the next row or io.EOF.
func (s *SliceSequence) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// Close is a no-op.
func (s *SliceSequence) Close() error {
	return nil
}

// CoerceText converts a textual cell from a file into its natural value:
// the empty string becomes nil, integer literals int64 and decimal
// literals float64. Anything else stays text.
func CoerceText(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	if isIntLiteral(t) {
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	if isDecimalLiteral(t) {
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return s
}

func isIntLiteral(s string) bool {
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	// keep zero-padded codes such as zip codes as text
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isDecimalLiteral accepts [sign] digits [. digits] [e[sign]digits] with at
// least one digit. It rejects inf, nan and hex forms ParseFloat allows.
func isDecimalLiteral(s string) bool {
	i := 0
	if s[i] == '-' || s[i] == '+' {
		i++
	}
	if i+1 < len(s) && s[i] == '0' && s[i+1] >= '0' && s[i+1] <= '9' {
		return false
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '-' || s[i] == '+') {
			i++
		}
		exp := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}
