package batch

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/pool"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
	"github.com/ajitpratap0/edgesql/pkg/vector"
)

const (
	beginStatement  = "BEGIN TRANSACTION;"
	commitStatement = "COMMIT;"
)

// Render serializes a chunk into its transactional statement group and
// returns the group with its total size in bytes. Vector cells are encoded
// here; the first bad vector fails the whole chunk.
func (e *Executor) Render(c *Chunk) ([]string, int, error) {
	if c.Schema == nil || len(c.Schema.Columns) == 0 {
		return nil, 0, errors.New(errors.ErrorTypeValidation, "chunk has no target schema")
	}

	prefix := insertPrefix(c.Schema)
	stmts := make([]string, 0, len(c.Rows)+2)
	stmts = append(stmts, beginStatement)

	multi := pool.Buffers.Get()
	defer pool.Buffers.Put(multi)
	if e.opts.MultiRowInsert && len(c.Rows) > 0 {
		multi.WriteString(prefix)
	}

	values := pool.Buffers.Get()
	defer pool.Buffers.Put(values)
	for i, row := range c.Rows {
		values.Reset()
		if err := e.renderRow(values, c, i, row); err != nil {
			return nil, 0, err
		}
		if e.opts.MultiRowInsert {
			if i > 0 {
				multi.WriteString(", ")
			}
			multi.WriteString(values.String())
			continue
		}
		stmts = append(stmts, prefix+values.String()+";")
	}
	if e.opts.MultiRowInsert && len(c.Rows) > 0 {
		multi.WriteByte(';')
		stmts = append(stmts, multi.String())
	}
	stmts = append(stmts, commitStatement)

	size := 0
	for _, s := range stmts {
		size += len(s)
	}
	return stmts, size, nil
}

func insertPrefix(t *schema.TargetSchema) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(schema.QuoteIdent(t.Table))
	b.WriteString(" (")
	for i, col := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(schema.QuoteIdent(col.Name))
	}
	b.WriteString(") VALUES ")
	return b.String()
}

func (e *Executor) renderRow(b *bytes.Buffer, c *Chunk, i int, row source.Row) error {
	b.WriteByte('(')
	for ci, col := range c.Schema.Columns {
		if ci > 0 {
			b.WriteString(", ")
		}
		v := cell(c.Schema, row, ci)

		if col.Type.Kind == schema.KindVector && v != nil {
			lit, err := e.vectorLiteral(col.Type, v)
			if err != nil {
				return annotate(err, c, i, col.Name)
			}
			b.WriteString(lit)
			continue
		}
		lit, err := Literal(v)
		if err != nil {
			return annotate(err, c, i, col.Name)
		}
		b.WriteString(lit)
	}
	b.WriteByte(')')
	return nil
}

func cell(t *schema.TargetSchema, row source.Row, col int) any {
	idx := col
	if t.Mapping != nil {
		idx = t.Mapping[col]
	}
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func (e *Executor) vectorLiteral(t schema.ColumnType, v any) (string, error) {
	vals, err := vector.Parse(v)
	if err != nil {
		return "", err
	}
	if err := vector.CheckDim(len(vals), t.Dim); err != nil {
		return "", err
	}
	if e.opts.VectorLiteral {
		return vector.Literal(t.Format, vals), nil
	}
	return blobLiteral(vector.EncodeValues(t.Format, vals)), nil
}

// annotate adds the 1-based absolute row number and the column to a cell
// encoding error.
func annotate(err error, c *Chunk, i int, column string) error {
	row := c.FirstRow + int64(i) + 1
	var se *errors.Error
	if errors.As(err, &se) {
		return se.WithDetail("row", row).WithDetail("column", column).WithDetail("chunk", c.Index)
	}
	return errors.Wrap(err, errors.ErrorTypeVectorParse, "cannot encode vector").
		WithDetail("row", row).
		WithDetail("column", column).
		WithDetail("chunk", c.Index)
}

// Literal renders a scalar value as an SQL literal. NaN and infinities have
// no SQL literal and become NULL. A value of any other type is an error.
func Literal(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case float64:
		return floatLiteral(val), nil
	case float32:
		return floatLiteral(float64(val)), nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case string:
		return schema.QuoteString(val), nil
	case []byte:
		return blobLiteral(val), nil
	case time.Time:
		return schema.QuoteString(val.UTC().Format(time.RFC3339Nano)), nil
	case []float32, []float64, []any:
		// a vector value in a non-vector column is stored as its text form
		vals, err := vector.Parse(val)
		if err != nil {
			return "", err
		}
		return schema.QuoteString(textVector(vals)), nil
	}
	return "", errors.Newf(errors.ErrorTypeValidation, "no SQL literal for value of type %T", v)
}

func floatLiteral(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "NULL"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func blobLiteral(b []byte) string {
	return "X'" + hex.EncodeToString(b) + "'"
}

func textVector(vals []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}
