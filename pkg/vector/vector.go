// Package vector converts numeric vectors between their source representation
// and the fixed-width little-endian blob layout EdgeSQL stores in
// F32_BLOB/F64_BLOB columns.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ajitpratap0/edgesql/pkg/errors"
)

// Format is the element width of an encoded vector.
type Format int

const (
	// F32 stores each element as an IEEE-754 float32
	F32 Format = iota
	// F64 stores each element as an IEEE-754 float64
	F64
)

// ParseFormat maps a configuration or column type name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "f32", "f32_blob", "float32":
		return F32, nil
	case "f64", "f64_blob", "float64":
		return F64, nil
	}
	return F32, fmt.Errorf("unsupported vector format %q", s)
}

// Width returns the encoded size of one element.
func (f Format) Width() int {
	if f == F64 {
		return 8
	}
	return 4
}

// TypeName returns the column type for the format, e.g. F32_BLOB.
func (f Format) TypeName() string {
	if f == F64 {
		return "F64_BLOB"
	}
	return "F32_BLOB"
}

func (f Format) String() string {
	if f == F64 {
		return "f64"
	}
	return "f32"
}

// Parse reads a vector from text ("[1, 2.5, 3]", "1 2 3", "1,2,3"), a byte
// slice holding such text, or a list of numbers.
func Parse(value any) ([]float64, error) {
	switch v := value.(type) {
	case string:
		return parseText(v)
	case []byte:
		return parseText(string(v))
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	case []float32:
		out := make([]float64, len(v))
		for i, f := range v {
			out[i] = float64(f)
		}
		return out, nil
	case []any:
		out := make([]float64, len(v))
		for i, elem := range v {
			f, ok := toFloat(elem)
			if !ok {
				return nil, parseError(fmt.Sprintf("%v", elem), i)
			}
			out[i] = f
		}
		return out, nil
	case nil:
		return nil, errors.New(errors.ErrorTypeVectorParse, "vector value is null")
	}
	return nil, errors.Newf(errors.ErrorTypeVectorParse, "unsupported vector value of type %T", value)
}

// Dim returns the number of elements in value without keeping them.
func Dim(value any) (int, error) {
	vals, err := Parse(value)
	if err != nil {
		return 0, err
	}
	return len(vals), nil
}

// LooksLikeVector reports whether a text value has the bracketed list shape
// used to detect vector columns during inference.
func LooksLikeVector(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return false
	}
	vals, err := parseText(s)
	return err == nil && len(vals) > 0
}

func parseText(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ';'
	})
	if len(fields) == 0 {
		return nil, errors.New(errors.ErrorTypeVectorParse, "vector has no elements")
	}

	out := make([]float64, len(fields))
	for i, tok := range fields {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, parseError(tok, i)
		}
		out[i] = f
	}
	return out, nil
}

func parseError(token string, index int) *errors.Error {
	return errors.Newf(errors.ErrorTypeVectorParse, "non-numeric vector element %q", token).
		WithDetail("element", index)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Encode parses value and encodes it as F32. expectedDim must match the
// parsed length.
func Encode(value any, expectedDim int) ([]byte, error) {
	return EncodeWith(F32, value, expectedDim)
}

// EncodeWith parses and encodes value in the given format.
func EncodeWith(format Format, value any, expectedDim int) ([]byte, error) {
	vals, err := Parse(value)
	if err != nil {
		return nil, err
	}
	if err := CheckDim(len(vals), expectedDim); err != nil {
		return nil, err
	}
	return EncodeValues(format, vals), nil
}

// CheckDim returns a VectorDimensionMismatch error when actual != expected.
func CheckDim(actual, expected int) error {
	if actual == expected {
		return nil
	}
	return errors.Newf(errors.ErrorTypeVectorDimension, "vector has %d elements, column expects %d", actual, expected).
		WithDetail("expected_dim", expected).
		WithDetail("actual_dim", actual)
}

// EncodeValues writes vals in little-endian order.
func EncodeValues(format Format, vals []float64) []byte {
	w := format.Width()
	out := make([]byte, w*len(vals))
	for i, v := range vals {
		if format == F64 {
			binary.LittleEndian.PutUint64(out[i*w:], math.Float64bits(v))
		} else {
			binary.LittleEndian.PutUint32(out[i*w:], math.Float32bits(float32(v)))
		}
	}
	return out
}

// Decode reverses EncodeValues.
func Decode(format Format, blob []byte) ([]float64, error) {
	w := format.Width()
	if len(blob)%w != 0 {
		return nil, errors.Newf(errors.ErrorTypeVectorParse, "blob length %d is not a multiple of %d", len(blob), w)
	}
	out := make([]float64, len(blob)/w)
	for i := range out {
		if format == F64 {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*w:]))
		} else {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(blob[i*w:])))
		}
	}
	return out, nil
}

// Literal renders vals as a vector('[...]') call, or vector64 for F64 columns.
func Literal(format Format, vals []float64) string {
	var b strings.Builder
	b.Grow(len(vals)*8 + 14)
	if format == F64 {
		b.WriteString("vector64('[")
	} else {
		b.WriteString("vector('[")
	}
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteString("]')")
	return b.String()
}
