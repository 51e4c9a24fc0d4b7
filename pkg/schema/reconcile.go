package schema

import (
	"fmt"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/vector"
)

// Reconciler maps a SourceSchema onto a target table. It holds no state
// between calls: the same inputs always give the same result or the same
// error.
type Reconciler struct {
	// VectorFormat is used for vector columns of new tables
	VectorFormat vector.Format
}

// Reconcile returns the schema rows will be written with. existing is nil
// when the table does not exist yet.
func (r Reconciler) Reconcile(table string, src *SourceSchema, existing *TargetSchema) (*TargetSchema, error) {
	if src == nil || len(src.Columns) == 0 {
		return nil, errors.New(errors.ErrorTypeSchemaInference, "source schema has no columns")
	}
	if existing == nil {
		return r.derive(table, src)
	}
	return r.match(table, src, existing)
}

func (r Reconciler) derive(table string, src *SourceSchema) (*TargetSchema, error) {
	target := &TargetSchema{
		Table:   table,
		Columns: make([]ColumnDescriptor, len(src.Columns)),
		Mapping: make([]int, len(src.Columns)),
	}
	for i, col := range src.Columns {
		t := col.Type
		switch t.Kind {
		case KindVector:
			if t.Dim <= 0 {
				return nil, mismatch(col.Name, "vector column has no dimension")
			}
			t.Format = r.VectorFormat
		case KindAny:
			t = Text
		}
		target.Columns[i] = ColumnDescriptor{Name: col.Name, Type: t, Nullable: col.Nullable}
		target.Mapping[i] = i
	}
	return target, nil
}

func (r Reconciler) match(table string, src *SourceSchema, existing *TargetSchema) (*TargetSchema, error) {
	// every source column must land on an existing column
	for _, col := range src.Columns {
		j := existing.Index(col.Name)
		if j < 0 {
			return nil, mismatch(col.Name, "column does not exist in target table")
		}
		if _, err := resolve(col, existing.Columns[j]); err != nil {
			return nil, err
		}
	}

	target := &TargetSchema{Table: table, Exists: true}
	for _, ex := range existing.Columns {
		si := src.Index(ex.Name)
		if si < 0 {
			if !ex.Nullable && !ex.HasDefault && !ex.PrimaryKey {
				return nil, mismatch(ex.Name, "required target column is missing from source")
			}
			continue
		}
		t, _ := resolve(src.Columns[si], ex)
		target.Columns = append(target.Columns, ColumnDescriptor{
			Name:       ex.Name,
			Type:       t,
			Nullable:   ex.Nullable,
			Declared:   ex.Declared,
			HasDefault: ex.HasDefault,
			PrimaryKey: ex.PrimaryKey,
		})
		target.Mapping = append(target.Mapping, si)
	}
	return target, nil
}

// resolve returns the type values are rendered with when src is written to ex.
func resolve(src, ex ColumnDescriptor) (ColumnType, error) {
	if src.Nullable && !ex.Nullable && !ex.PrimaryKey {
		return ColumnType{}, mismatch(src.Name, "source has nulls but target column is NOT NULL")
	}

	s, t := src.Type, ex.Type
	switch t.Kind {
	case KindAny:
		if s.Kind == KindVector {
			return ColumnType{}, mismatch(src.Name, "vector values need a BLOB or vector column")
		}
		return s, nil
	case KindInteger:
		if s.Kind == KindInteger {
			return Integer, nil
		}
	case KindReal:
		if s.Kind == KindInteger || s.Kind == KindReal {
			return Real, nil
		}
	case KindText:
		if s.Kind == KindText {
			return Text, nil
		}
	case KindBlob:
		switch s.Kind {
		case KindBlob:
			return Blob, nil
		case KindVector:
			// untyped blob column: write F32 vectors of the source dimension
			return ColumnType{Kind: KindVector, Dim: s.Dim, Format: vector.F32}, nil
		}
	case KindVector:
		if s.Kind != KindVector {
			break
		}
		if ex.Declared != "" {
			if _, err := ParseDeclaredType(ex.Declared); err != nil {
				return ColumnType{}, mismatch(src.Name, err.Error())
			}
		}
		if s.Dim != t.Dim {
			return ColumnType{}, mismatch(src.Name, fmt.Sprintf("vector dimension %d conflicts with target dimension %d", s.Dim, t.Dim)).
				WithDetail("expected_dim", t.Dim).
				WithDetail("actual_dim", s.Dim)
		}
		return t, nil
	}
	return ColumnType{}, mismatch(src.Name, fmt.Sprintf("source type %s is incompatible with target type %s", s, describe(ex))).
		WithDetail("source_type", s.String()).
		WithDetail("target_type", describe(ex))
}

func describe(c ColumnDescriptor) string {
	if c.Declared != "" {
		return c.Declared
	}
	return c.Type.String()
}

func mismatch(column, msg string) *errors.Error {
	return errors.Newf(errors.ErrorTypeSchemaMismatch, "column %q: %s", column, msg).
		WithDetail("column", column)
}
