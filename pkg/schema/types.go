// Package schema models source and target column metadata and reconciles
// one onto the other.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ajitpratap0/edgesql/pkg/vector"
)

// Kind is the storage class of a column.
type Kind int

const (
	// KindAny is an untyped or NUMERIC-affinity target column
	KindAny Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
	KindVector
)

var kindNames = map[Kind]string{
	KindAny:     "any",
	KindInteger: "integer",
	KindReal:    "real",
	KindText:    "text",
	KindBlob:    "blob",
	KindVector:  "vector",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ColumnType is a Kind plus the vector dimension and element format.
// Dim and Format are meaningful only for KindVector.
type ColumnType struct {
	Kind   Kind
	Dim    int
	Format vector.Format
}

// Integer, Real, Text and Blob are the scalar column types.
var (
	Integer = ColumnType{Kind: KindInteger}
	Real    = ColumnType{Kind: KindReal}
	Text    = ColumnType{Kind: KindText}
	Blob    = ColumnType{Kind: KindBlob}
)

// Vector returns an F32 vector type of the given dimension.
func Vector(dim int) ColumnType {
	return ColumnType{Kind: KindVector, Dim: dim, Format: vector.F32}
}

// SQLType renders the type as it appears in CREATE TABLE.
func (t ColumnType) SQLType() string {
	switch t.Kind {
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	case KindVector:
		return fmt.Sprintf("%s(%d)", t.Format.TypeName(), t.Dim)
	}
	return ""
}

func (t ColumnType) String() string {
	if t.Kind == KindVector {
		return fmt.Sprintf("vector(%d)", t.Dim)
	}
	return t.Kind.String()
}

// ColumnDescriptor describes one column of a source or target.
type ColumnDescriptor struct {
	Name     string
	Type     ColumnType
	Nullable bool
	// Declared is the type text reported by the source or table, if any
	Declared string
	// HasDefault and PrimaryKey are set for existing target columns
	HasDefault bool
	PrimaryKey bool
}

// SourceSchema is the ordered column set a source produces.
type SourceSchema struct {
	Columns []ColumnDescriptor
}

// Names returns the column names in order.
func (s *SourceSchema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of a column by case-insensitive name, or -1.
func (s *SourceSchema) Index(name string) int {
	return indexOf(s.Columns, name)
}

// TargetSchema is the reconciled schema rows are written with.
type TargetSchema struct {
	Table   string
	Columns []ColumnDescriptor
	// Exists is true when the table was found before the import
	Exists bool
	// Mapping[i] is the source column index feeding Columns[i]
	Mapping []int
}

// Names returns the target column names in order.
func (t *TargetSchema) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of a column by case-insensitive name, or -1.
func (t *TargetSchema) Index(name string) int {
	return indexOf(t.Columns, name)
}

// VectorColumns returns the indexes of vector columns.
func (t *TargetSchema) VectorColumns() []int {
	var out []int
	for i, c := range t.Columns {
		if c.Type.Kind == KindVector {
			out = append(out, i)
		}
	}
	return out
}

func indexOf(cols []ColumnDescriptor, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

var vectorDecl = regexp.MustCompile(`^(F32_BLOB|F64_BLOB|FLOAT32|FLOAT64|F16_BLOB|FB16_BLOB|F8_BLOB|F1BIT_BLOB|FLOAT16|FLOATB16|FLOAT8|FLOAT1BIT)\s*\(\s*(\d+)\s*\)$`)

// ErrUnsupportedVector is reported for vector column encodings the encoder
// cannot produce.
type ErrUnsupportedVector struct {
	Declared string
}

func (e *ErrUnsupportedVector) Error() string {
	return fmt.Sprintf("vector encoding %s is not supported", e.Declared)
}

// ParseDeclaredType maps a SQLite declared type onto a ColumnType using the
// affinity rules, with vector types recognized first. Compressed vector
// encodings (F16, F8, 1-bit) return ErrUnsupportedVector along with their
// dimension.
func ParseDeclaredType(decl string) (ColumnType, error) {
	d := strings.ToUpper(strings.TrimSpace(decl))

	if m := vectorDecl.FindStringSubmatch(d); m != nil {
		dim, _ := strconv.Atoi(m[2])
		switch m[1] {
		case "F32_BLOB", "FLOAT32":
			return ColumnType{Kind: KindVector, Dim: dim, Format: vector.F32}, nil
		case "F64_BLOB", "FLOAT64":
			return ColumnType{Kind: KindVector, Dim: dim, Format: vector.F64}, nil
		}
		return ColumnType{Kind: KindVector, Dim: dim}, &ErrUnsupportedVector{Declared: decl}
	}

	switch {
	case strings.Contains(d, "INT"):
		return Integer, nil
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return Text, nil
	case strings.Contains(d, "BLOB"):
		return Blob, nil
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return Real, nil
	}
	return ColumnType{Kind: KindAny}, nil
}

// MapSourceType maps a source database's column type name onto a
// ColumnType. ok is false for types that need value inference.
func MapSourceType(dbType string) (ColumnType, bool) {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 && !vectorDecl.MatchString(strings.ToUpper(t)) {
		t = strings.TrimSpace(t[:i])
	}

	switch t {
	case "int", "integer", "int2", "int4", "int8", "smallint", "bigint", "tinyint", "mediumint",
		"serial", "bigserial", "smallserial", "bool", "boolean", "bit", "year":
		return Integer, true
	case "real", "float", "float4", "float8", "double", "double precision",
		"decimal", "numeric", "number", "money", "fixed":
		return Real, true
	case "text", "varchar", "char", "character", "character varying", "nvarchar", "nchar",
		"tinytext", "mediumtext", "longtext", "string", "uuid", "json", "jsonb", "xml",
		"date", "time", "datetime", "timestamp", "timestamptz", "timestamp with time zone",
		"timestamp without time zone", "time with time zone", "time without time zone",
		"interval", "enum", "set", "inet", "cidr", "macaddr", "variant", "object", "array":
		return Text, true
	case "blob", "bytea", "binary", "varbinary", "tinyblob", "mediumblob", "longblob":
		return Blob, true
	case "vector":
		return ColumnType{Kind: KindVector}, true
	}

	if ct, err := ParseDeclaredType(dbType); err == nil && ct.Kind == KindVector {
		return ct, true
	}
	if strings.HasPrefix(t, "timestamp") || strings.HasPrefix(t, "time ") {
		return Text, true
	}
	if strings.HasSuffix(t, "[]") || strings.HasPrefix(t, "_") {
		return Text, true
	}
	return ColumnType{}, false
}
