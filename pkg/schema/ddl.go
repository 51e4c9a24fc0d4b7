package schema

import (
	"strings"
)

// QuoteIdent quotes an SQL identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString renders a single-quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// CreateTableSQL renders the CREATE TABLE statement for a new target.
func CreateTableSQL(t *TargetSchema) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(QuoteIdent(t.Table))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(QuoteIdent(c.Name))
		b.WriteByte(' ')
		b.WriteString(c.Type.SQLType())
	}
	b.WriteString(");")
	return b.String()
}

// DescribeSQL returns the statement listing a table's columns.
func DescribeSQL(table string) string {
	return "PRAGMA table_info(" + QuoteIdent(table) + ");"
}

// ExistsSQL returns the statement that finds a table in sqlite_master.
func ExistsSQL(table string) string {
	return "SELECT name FROM sqlite_master WHERE type='table' AND name=" + QuoteString(table) + ";"
}

// TableInfoRow is one row of PRAGMA table_info: cid, name, type, notnull,
// dflt_value, pk.
type TableInfoRow struct {
	Name       string
	Declared   string
	NotNull    bool
	HasDefault bool
	PrimaryKey bool
}

// FromTableInfo builds an existing TargetSchema from PRAGMA table_info rows.
func FromTableInfo(table string, rows []TableInfoRow) *TargetSchema {
	t := &TargetSchema{Table: table, Exists: true}
	for _, r := range rows {
		ct, err := ParseDeclaredType(r.Declared)
		if err != nil {
			// keep the kind and dimension; the reconciler rejects the encoding
			ct.Kind = KindVector
		}
		t.Columns = append(t.Columns, ColumnDescriptor{
			Name:       r.Name,
			Type:       ct,
			Nullable:   !r.NotNull,
			Declared:   r.Declared,
			HasDefault: r.HasDefault,
			PrimaryKey: r.PrimaryKey,
		})
	}
	return t
}
