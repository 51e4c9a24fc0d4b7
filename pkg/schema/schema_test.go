package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/vector"
)

func source(cols ...ColumnDescriptor) *SourceSchema {
	return &SourceSchema{Columns: cols}
}

func TestReconcileNewTable(t *testing.T) {
	src := source(
		ColumnDescriptor{Name: "id", Type: Integer},
		ColumnDescriptor{Name: "score", Type: Real, Nullable: true},
		ColumnDescriptor{Name: "name", Type: Text},
		ColumnDescriptor{Name: "embedding", Type: Vector(3)},
	)

	target, err := Reconciler{VectorFormat: vector.F32}.Reconcile("people", src, nil)
	require.NoError(t, err)
	assert.False(t, target.Exists)
	assert.Equal(t, []int{0, 1, 2, 3}, target.Mapping)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "people" ("id" INTEGER, "score" REAL, "name" TEXT, "embedding" F32_BLOB(3));`,
		CreateTableSQL(target))
	assert.Equal(t, []int{3}, target.VectorColumns())
}

func TestReconcileNewTableF64(t *testing.T) {
	src := source(ColumnDescriptor{Name: "v", Type: Vector(2)})
	target, err := Reconciler{VectorFormat: vector.F64}.Reconcile("t", src, nil)
	require.NoError(t, err)
	assert.Equal(t, "F64_BLOB(2)", target.Columns[0].Type.SQLType())
}

func TestReconcileExistingTable(t *testing.T) {
	existing := FromTableInfo("people", []TableInfoRow{
		{Name: "rowid_pk", Declared: "INTEGER", NotNull: true, PrimaryKey: true},
		{Name: "Name", Declared: "VARCHAR(40)"},
		{Name: "score", Declared: "DOUBLE"},
		{Name: "embedding", Declared: "F32_BLOB(3)"},
		{Name: "note", Declared: "TEXT"},
	})
	src := source(
		ColumnDescriptor{Name: "embedding", Type: Vector(3)},
		ColumnDescriptor{Name: "score", Type: Integer},
		ColumnDescriptor{Name: "name", Type: Text},
	)

	target, err := Reconciler{}.Reconcile("people", src, existing)
	require.NoError(t, err)
	assert.True(t, target.Exists)
	// existing order, restricted to source columns
	assert.Equal(t, []string{"Name", "score", "embedding"}, target.Names())
	assert.Equal(t, []int{2, 1, 0}, target.Mapping)
	assert.Equal(t, KindReal, target.Columns[1].Type.Kind)
	assert.Equal(t, 3, target.Columns[2].Type.Dim)
}

func TestReconcileMismatches(t *testing.T) {
	existing := FromTableInfo("t", []TableInfoRow{
		{Name: "id", Declared: "INTEGER"},
		{Name: "v", Declared: "F32_BLOB(128)"},
		{Name: "h", Declared: "F16_BLOB(8)"},
		{Name: "req", Declared: "TEXT", NotNull: true},
		{Name: "anything", Declared: ""},
	})

	tests := []struct {
		name   string
		src    *SourceSchema
		column string
	}{
		{"missing column", source(ColumnDescriptor{Name: "nope", Type: Text}, ColumnDescriptor{Name: "req", Type: Text}), "nope"},
		{"incompatible", source(ColumnDescriptor{Name: "id", Type: Real}, ColumnDescriptor{Name: "req", Type: Text}), "id"},
		{"dimension", source(ColumnDescriptor{Name: "v", Type: Vector(127)}, ColumnDescriptor{Name: "req", Type: Text}), "v"},
		{"unsupported encoding", source(ColumnDescriptor{Name: "h", Type: Vector(8)}, ColumnDescriptor{Name: "req", Type: Text}), "h"},
		{"nullable into not null", source(ColumnDescriptor{Name: "req", Type: Text, Nullable: true}), "req"},
		{"required missing", source(ColumnDescriptor{Name: "id", Type: Integer}), "req"},
		{"vector into untyped", source(ColumnDescriptor{Name: "anything", Type: Vector(2)}, ColumnDescriptor{Name: "req", Type: Text}), "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconciler{}.Reconcile("t", tt.src, existing)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaMismatch), err.Error())

			var se *errors.Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.column, se.Details["column"])
		})
	}
}

func TestReconcileIsDeterministic(t *testing.T) {
	existing := FromTableInfo("t", []TableInfoRow{
		{Name: "a", Declared: "INTEGER"},
		{Name: "b", Declared: "TEXT"},
	})
	ok := source(ColumnDescriptor{Name: "b", Type: Text}, ColumnDescriptor{Name: "a", Type: Integer})
	bad := source(ColumnDescriptor{Name: "a", Type: Text}, ColumnDescriptor{Name: "b", Type: Integer})

	first, err := Reconciler{}.Reconcile("t", ok, existing)
	require.NoError(t, err)
	_, firstErr := Reconciler{}.Reconcile("t", bad, existing)
	require.Error(t, firstErr)

	for i := 0; i < 20; i++ {
		again, err := Reconciler{}.Reconcile("t", ok, existing)
		require.NoError(t, err)
		assert.Equal(t, first, again)

		_, againErr := Reconciler{}.Reconcile("t", bad, existing)
		assert.Equal(t, firstErr.Error(), againErr.Error())
	}
}

func TestParseDeclaredType(t *testing.T) {
	tests := []struct {
		decl string
		want ColumnType
	}{
		{"INTEGER", Integer},
		{"bigint", Integer},
		{"VARCHAR(20)", Text},
		{"clob", Text},
		{"BLOB", Blob},
		{"DOUBLE PRECISION", Real},
		{"float", Real},
		{"NUMERIC", ColumnType{Kind: KindAny}},
		{"", ColumnType{Kind: KindAny}},
		{"F32_BLOB(128)", ColumnType{Kind: KindVector, Dim: 128, Format: vector.F32}},
		{"f64_blob( 3 )", ColumnType{Kind: KindVector, Dim: 3, Format: vector.F64}},
		{"FLOAT32(4)", ColumnType{Kind: KindVector, Dim: 4, Format: vector.F32}},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			got, err := ParseDeclaredType(tt.decl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := ParseDeclaredType("F8_BLOB(16)")
	require.Error(t, err)
	assert.Equal(t, 16, got.Dim)
}

func TestMapSourceType(t *testing.T) {
	tests := []struct {
		dbType string
		want   Kind
		ok     bool
	}{
		{"bigint", KindInteger, true},
		{"boolean", KindInteger, true},
		{"numeric(10,2)", KindReal, true},
		{"character varying", KindText, true},
		{"timestamp with time zone", KindText, true},
		{"DATETIME", KindText, true},
		{"bytea", KindBlob, true},
		{"F32_BLOB(8)", KindVector, true},
		{"USER-DEFINED", KindAny, false},
	}
	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			got, ok := MapSourceType(tt.dbType)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.Kind)
			}
		})
	}
}

func TestInferrer(t *testing.T) {
	in := NewInferrer([]string{"id", "price", "label", "emb", "raw", "empty", "when"})
	now := time.Now()
	in.Observe([]any{int64(1), int64(3), "a", "[0.1, 0.2, 0.3]", []byte{1}, nil, now})
	in.Observe([]any{int64(2), 2.5, nil, []float32{1, 2, 3}, []byte{2}, nil, now})
	in.Observe([]any{true, int64(4), "c", "[1,2,3]", []byte{3}, nil, now})

	s, err := in.Schema()
	require.NoError(t, err)

	assert.Equal(t, Integer, s.Columns[0].Type)
	assert.Equal(t, Real, s.Columns[1].Type)
	assert.Equal(t, Text, s.Columns[2].Type)
	assert.True(t, s.Columns[2].Nullable)
	assert.Equal(t, Vector(3), s.Columns[3].Type)
	assert.Equal(t, Blob, s.Columns[4].Type)
	assert.Equal(t, Text, s.Columns[5].Type)
	assert.True(t, s.Columns[5].Nullable)
	assert.Equal(t, Text, s.Columns[6].Type)
}

func TestInferrerDeclaredVectorWins(t *testing.T) {
	in := NewInferrer([]string{"emb"})
	require.True(t, in.DeclareVector("EMB", 128))
	in.Observe([]any{"[1,2]"})

	s, err := in.Schema()
	require.NoError(t, err)
	assert.Equal(t, 128, s.Columns[0].Type.Dim)
}

func TestInferrerVectorLengthsDisagree(t *testing.T) {
	in := NewInferrer([]string{"emb"})
	in.Observe([]any{"[1,2,3]"})
	in.Observe([]any{"[1,2]"})
	s, err := in.Schema()
	require.NoError(t, err)
	assert.Equal(t, Text, s.Columns[0].Type)

	in = NewInferrer([]string{"id", "emb"})
	in.Declare(1, ColumnType{Kind: KindVector}, true, "list<float>")
	in.Observe([]any{int64(1), []float64{1, 2, 3}})
	in.Observe([]any{int64(2), nil})
	in.Observe([]any{int64(3), []float64{1, 2}})
	_, err = in.Schema()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeVectorDimension))
	var se *errors.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.Details["row"])
	assert.Equal(t, "emb", se.Details["column"])
	assert.Equal(t, 3, se.Details["expected_dim"])
	assert.Equal(t, 2, se.Details["actual_dim"])
}

func TestInferrerErrors(t *testing.T) {
	in := NewInferrer([]string{"a", "b"})
	in.Observe([]any{int64(1)})
	_, err := in.Schema()
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaInference))

	in = NewInferrer([]string{"a", "A"})
	_, err = in.Schema()
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaInference))

	in = NewInferrer([]string{"v"})
	in.Declare(0, ColumnType{Kind: KindVector}, true, "vector")
	in.Observe([]any{nil})
	_, err = in.Schema()
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaInference))

	in = NewInferrer([]string{"m"})
	in.Observe([]any{map[string]int{}})
	_, err = in.Schema()
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaInference))
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
	assert.Equal(t, `'it''s'`, QuoteString("it's"))
	assert.Equal(t, `PRAGMA table_info("t");`, DescribeSQL("t"))
	assert.Equal(t, `SELECT name FROM sqlite_master WHERE type='table' AND name='t';`, ExistsSQL("t"))
}
