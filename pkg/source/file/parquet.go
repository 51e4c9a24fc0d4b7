package file

import (
	"bytes"
	"context"
	"io"
	"math"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/goccy/go-json"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

const parquetBatchSize = 4096

// openParquet loads the file into memory, since the footer must be read
// before any row group, and streams its record batches.
func openParquet(ctx context.Context, body io.ReadCloser) (*table, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	body.Close()

	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	ar, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{BatchSize: parquetBatchSize}, memory.NewGoAllocator())
	if err != nil {
		fr.Close()
		return nil, err
	}
	sc, err := ar.Schema()
	if err != nil {
		fr.Close()
		return nil, err
	}
	rr, err := ar.GetRecordReader(ctx, nil, nil)
	if err != nil {
		fr.Close()
		return nil, err
	}

	t := &table{
		names: make([]string, sc.NumFields()),
		types: make([]*declared, sc.NumFields()),
	}
	for i, f := range sc.Fields() {
		t.names[i] = f.Name
		t.types[i] = arrowType(f.Type)
	}
	t.rows = &parquetSequence{fr: fr, rr: rr, width: len(t.names)}
	return t, nil
}

func arrowType(dt arrow.DataType) *declared {
	name := dt.String()
	switch dt.ID() {
	case arrow.BOOL, arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return &declared{Type: schema.Integer, Name: name}
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64, arrow.DECIMAL128, arrow.DECIMAL256:
		return &declared{Type: schema.Real, Name: name}
	case arrow.STRING, arrow.LARGE_STRING, arrow.DATE32, arrow.DATE64, arrow.TIMESTAMP:
		return &declared{Type: schema.Text, Name: name}
	case arrow.BINARY, arrow.LARGE_BINARY:
		return &declared{Type: schema.Blob, Name: name}
	case arrow.LIST:
		if isNumeric(dt.(*arrow.ListType).Elem()) {
			return &declared{Type: schema.ColumnType{Kind: schema.KindVector}, Name: name}
		}
		return &declared{Type: schema.Text, Name: name}
	case arrow.FIXED_SIZE_LIST:
		fl := dt.(*arrow.FixedSizeListType)
		if isNumeric(fl.Elem()) {
			return &declared{Type: schema.Vector(int(fl.Len())), Name: name}
		}
		return &declared{Type: schema.Text, Name: name}
	}
	return nil
}

// isNumeric reports whether list elements of dt can form a vector.
func isNumeric(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.FLOAT32, arrow.FLOAT64,
		arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return true
	}
	return false
}

type parquetSequence struct {
	fr    *file.Reader
	rr    pqarrow.RecordReader
	rec   arrow.Record
	pos   int
	width int
}

func (s *parquetSequence) Next(ctx context.Context) (source.Row, error) {
	for s.rec == nil || s.pos >= int(s.rec.NumRows()) {
		if !s.rr.Next() {
			if err := s.rr.Err(); err != nil && err != io.EOF {
				return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to read parquet batch")
			}
			return nil, io.EOF
		}
		s.rec = s.rr.Record()
		s.pos = 0
	}

	row := make(source.Row, s.width)
	for i := 0; i < s.width && i < int(s.rec.NumCols()); i++ {
		row[i] = arrowValue(s.rec.Column(i), s.pos)
	}
	s.pos++
	return row, nil
}

func (s *parquetSequence) Close() error {
	s.rr.Release()
	return s.fr.Close()
}

func arrowValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}

	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(i)
	case *array.Int8:
		return int64(c.Value(i))
	case *array.Int16:
		return int64(c.Value(i))
	case *array.Int32:
		return int64(c.Value(i))
	case *array.Int64:
		return c.Value(i)
	case *array.Uint8:
		return int64(c.Value(i))
	case *array.Uint16:
		return int64(c.Value(i))
	case *array.Uint32:
		return int64(c.Value(i))
	case *array.Uint64:
		v := c.Value(i)
		if v > math.MaxInt64 {
			return strconv.FormatUint(v, 10)
		}
		return int64(v)
	case *array.Float32:
		return float64(c.Value(i))
	case *array.Float64:
		return c.Value(i)
	case *array.String:
		return c.Value(i)
	case *array.LargeString:
		return c.Value(i)
	case *array.Binary:
		return bytes.Clone(c.Value(i))
	case *array.LargeBinary:
		return bytes.Clone(c.Value(i))
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(i).ToTime(unit)
	case *array.Date32:
		return c.Value(i).ToTime()
	case *array.Date64:
		return c.Value(i).ToTime()
	case *array.List:
		start, end := c.ValueOffsets(i)
		return listValue(c.ListValues(), int(start), int(end))
	case *array.FixedSizeList:
		start, end := c.ValueOffsets(i)
		return listValue(c.ListValues(), int(start), int(end))
	}
	return col.ValueStr(i)
}

// listValue turns numeric lists into vectors and renders any other list
// as JSON text.
func listValue(values arrow.Array, start, end int) any {
	if vec, ok := numbers(values, start, end); ok {
		return vec
	}
	items := make([]any, 0, end-start)
	for j := start; j < end; j++ {
		items = append(items, arrowValue(values, j))
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return string(data)
}

func numbers(values arrow.Array, start, end int) ([]float64, bool) {
	if !isNumeric(values.DataType()) {
		return nil, false
	}
	if values.NullN() > 0 {
		for j := start; j < end; j++ {
			if values.IsNull(j) {
				return nil, false
			}
		}
	}
	out := make([]float64, 0, end-start)
	for j := start; j < end; j++ {
		switch v := values.(type) {
		case *array.Float32:
			out = append(out, float64(v.Value(j)))
		case *array.Float64:
			out = append(out, v.Value(j))
		case *array.Int8:
			out = append(out, float64(v.Value(j)))
		case *array.Int16:
			out = append(out, float64(v.Value(j)))
		case *array.Int32:
			out = append(out, float64(v.Value(j)))
		case *array.Int64:
			out = append(out, float64(v.Value(j)))
		case *array.Uint8:
			out = append(out, float64(v.Value(j)))
		case *array.Uint16:
			out = append(out, float64(v.Value(j)))
		case *array.Uint32:
			out = append(out, float64(v.Value(j)))
		case *array.Uint64:
			out = append(out, float64(v.Value(j)))
		default:
			return nil, false
		}
	}
	return out, true
}
