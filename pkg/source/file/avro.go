package file

import (
	"context"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

type avroField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type avroRecord struct {
	Type   string      `json:"type"`
	Fields []avroField `json:"fields"`
}

// openAvro reads an object container file whose schema is a record.
func openAvro(body io.ReadCloser) (*table, error) {
	ocf, err := goavro.NewOCFReader(body)
	if err != nil {
		return nil, err
	}

	var rec avroRecord
	if err := json.Unmarshal([]byte(ocf.Codec().Schema()), &rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchemaInference, "cannot parse avro schema")
	}
	if rec.Type != "record" || len(rec.Fields) == 0 {
		return nil, errors.New(errors.ErrorTypeSchemaInference, "avro schema is not a record with fields")
	}

	t := &table{
		names: make([]string, len(rec.Fields)),
		types: make([]*declared, len(rec.Fields)),
	}
	for i, f := range rec.Fields {
		t.names[i] = f.Name
		t.types[i] = avroType(f.Type)
	}
	t.rows = &avroSequence{ocf: ocf, closer: body, names: t.names}
	return t, nil
}

// avroType maps primitive and nullable-primitive field types. Anything
// else is left to inference.
func avroType(raw json.RawMessage) *declared {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return avroPrimitive(name)
	}

	var union []json.RawMessage
	if err := json.Unmarshal(raw, &union); err == nil {
		var branch *declared
		for _, u := range union {
			var s string
			if json.Unmarshal(u, &s) == nil && s == "null" {
				continue
			}
			if branch != nil {
				return nil
			}
			if branch = avroType(u); branch == nil {
				return nil
			}
		}
		return branch
	}

	var complex struct {
		Type        string          `json:"type"`
		Items       json.RawMessage `json:"items"`
		LogicalType string          `json:"logicalType"`
	}
	if err := json.Unmarshal(raw, &complex); err != nil {
		return nil
	}
	switch {
	case complex.LogicalType != "":
		return &declared{Type: schema.Text, Name: complex.LogicalType}
	case complex.Type == "array":
		var items string
		if json.Unmarshal(complex.Items, &items) == nil && (items == "float" || items == "double") {
			return &declared{Type: schema.ColumnType{Kind: schema.KindVector}, Name: "array<" + items + ">"}
		}
	}
	return nil
}

func avroPrimitive(name string) *declared {
	switch name {
	case "int", "long", "boolean":
		return &declared{Type: schema.Integer, Name: name}
	case "float", "double":
		return &declared{Type: schema.Real, Name: name}
	case "string":
		return &declared{Type: schema.Text, Name: name}
	case "bytes":
		return &declared{Type: schema.Blob, Name: name}
	}
	return nil
}

type avroSequence struct {
	ocf    *goavro.OCFReader
	closer io.Closer
	names  []string
}

func (s *avroSequence) Next(ctx context.Context) (source.Row, error) {
	if !s.ocf.Scan() {
		if err := s.ocf.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to read avro block")
		}
		return nil, io.EOF
	}
	datum, err := s.ocf.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "failed to decode avro record")
	}
	m, ok := datum.(map[string]any)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeSchemaInference, "avro datum is %T, expected a record", datum)
	}

	row := make(source.Row, len(s.names))
	for i, name := range s.names {
		row[i] = avroValue(m[name])
	}
	return row, nil
}

func (s *avroSequence) Close() error {
	return s.closer.Close()
}

// avroValue converts goavro's native values into row values. Unions
// arrive as single-key maps and are unwrapped.
func avroValue(v any) any {
	switch val := v.(type) {
	case nil, int64, float64, bool, string, []byte, time.Time:
		return val
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	case time.Duration:
		return val.String()
	case map[string]any:
		if len(val) == 1 {
			for _, inner := range val {
				return avroValue(inner)
			}
		}
	case []any:
		if vec, ok := numericList(val); ok {
			return vec
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

func numericList(items []any) ([]float64, bool) {
	out := make([]float64, len(items))
	for i, it := range items {
		switch n := it.(type) {
		case float32:
			out[i] = float64(n)
		case float64:
			out[i] = n
		case int32:
			out[i] = float64(n)
		case int64:
			out[i] = float64(n)
		default:
			return nil, false
		}
	}
	return out, true
}
