package batch

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/edgesql/pkg/edgesql"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/retry"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
	"github.com/ajitpratap0/edgesql/pkg/testutil"
)

func fastRetry() *retry.Policy {
	return &retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func peopleSchema() *schema.TargetSchema {
	return &schema.TargetSchema{
		Table: "people",
		Columns: []schema.ColumnDescriptor{
			{Name: "id", Type: schema.Integer},
			{Name: "name", Type: schema.Text, Nullable: true},
		},
	}
}

func TestRenderPerRow(t *testing.T) {
	e := NewExecutor(&testutil.Endpoint{}, nil, Options{}, nil)
	c := &Chunk{
		Schema: peopleSchema(),
		Rows:   []source.Row{{int64(1), "O'Brien"}, {int64(2), nil}},
	}

	stmts, size, err := e.Render(c)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"BEGIN TRANSACTION;",
		`INSERT INTO "people" ("id", "name") VALUES (1, 'O''Brien');`,
		`INSERT INTO "people" ("id", "name") VALUES (2, NULL);`,
		"COMMIT;",
	}, stmts)

	total := 0
	for _, s := range stmts {
		total += len(s)
	}
	assert.Equal(t, total, size)
}

func TestRenderMultiRowWithMapping(t *testing.T) {
	target := peopleSchema()
	target.Columns[0], target.Columns[1] = target.Columns[1], target.Columns[0]
	target.Mapping = []int{1, 0}

	e := NewExecutor(&testutil.Endpoint{}, nil, Options{MultiRowInsert: true}, nil)
	stmts, _, err := e.Render(&Chunk{
		Schema: target,
		Rows:   []source.Row{{int64(1), "a"}, {int64(2), "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"BEGIN TRANSACTION;",
		`INSERT INTO "people" ("name", "id") VALUES ('a', 1), ('b', 2);`,
		"COMMIT;",
	}, stmts)
}

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	cases := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{int64(-5), "-5"},
		{3, "3"},
		{uint8(7), "7"},
		{2.5, "2.5"},
		{float32(0.25), "0.25"},
		{1e21, "1e+21"},
		{math.NaN(), "NULL"},
		{math.Inf(1), "NULL"},
		{true, "1"},
		{false, "0"},
		{"it's", "'it''s'"},
		{[]byte{0xde, 0xad}, "X'dead'"},
		{ts, "'2024-03-01T12:30:00Z'"},
		{[]float64{1, 2.5}, "'[1,2.5]'"},
	}
	for _, tc := range cases {
		got, err := Literal(tc.in)
		require.NoError(t, err, "%v", tc.in)
		assert.Equal(t, tc.want, got, "%v", tc.in)
	}
}

func TestLiteralRejectsUnknownTypes(t *testing.T) {
	_, err := Literal(map[string]int{"a": 1})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = Literal([]any{"red", "blue"})
	require.Error(t, err)
}

func TestRenderUnknownValueNamesCell(t *testing.T) {
	e := NewExecutor(&testutil.Endpoint{}, nil, Options{}, nil)
	_, _, err := e.Render(&Chunk{
		Index:    3,
		FirstRow: 10,
		Schema:   peopleSchema(),
		Rows:     []source.Row{{int64(1), "a"}, {int64(2), struct{}{}}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	var se *errors.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(12), se.Details["row"])
	assert.Equal(t, "name", se.Details["column"])
}

func vectorSchema(dim int) *schema.TargetSchema {
	return &schema.TargetSchema{
		Table: "docs",
		Columns: []schema.ColumnDescriptor{
			{Name: "id", Type: schema.Integer},
			{Name: "embedding", Type: schema.Vector(dim), Nullable: true},
		},
	}
}

func TestRenderVectors(t *testing.T) {
	c := &Chunk{
		Schema: vectorSchema(2),
		Rows:   []source.Row{{int64(1), "[1, 2]"}, {int64(2), nil}},
	}

	e := NewExecutor(&testutil.Endpoint{}, nil, Options{}, nil)
	stmts, _, err := e.Render(c)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "docs" ("id", "embedding") VALUES (1, X'0000803f00000040');`, stmts[1])
	assert.Equal(t, `INSERT INTO "docs" ("id", "embedding") VALUES (2, NULL);`, stmts[2])

	e = NewExecutor(&testutil.Endpoint{}, nil, Options{VectorLiteral: true}, nil)
	stmts, _, err = e.Render(c)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "docs" ("id", "embedding") VALUES (1, vector('[1,2]'));`, stmts[1])
}

func TestExecuteVectorDimensionFailsBeforeSubmit(t *testing.T) {
	rows := make([]source.Row, 1000)
	vec := make([]float32, 128)
	for i := range rows {
		rows[i] = source.Row{int64(4001 + i), vec}
	}
	// absolute row 4,321
	rows[320] = source.Row{int64(4321), make([]float32, 127)}

	ep := &testutil.Endpoint{}
	e := NewExecutor(ep, fastRetry(), Options{}, nil)
	outcome, err := e.Execute(context.Background(), &Chunk{Index: 4, FirstRow: 4000, Rows: rows, Schema: vectorSchema(128)})
	require.Error(t, err)
	assert.Empty(t, ep.Calls())
	assert.Equal(t, 0, outcome.RowsCommitted)

	assert.True(t, errors.IsType(err, errors.ErrorTypeVectorDimension))
	var se *errors.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(4321), se.Details["row"])
	assert.Equal(t, "embedding", se.Details["column"])
	assert.Equal(t, 128, se.Details["expected_dim"])
	assert.Equal(t, 127, se.Details["actual_dim"])
}

func TestExecuteRetriesTransportTimeout(t *testing.T) {
	ep := &testutil.Endpoint{Fail: func(call int, _ []string) error {
		if call == 1 {
			return errors.New(errors.ErrorTypeTransportTimeout, "request timed out")
		}
		return nil
	}}
	e := NewExecutor(ep, fastRetry(), Options{}, nil)

	outcome, err := e.Execute(context.Background(), &Chunk{
		Schema: peopleSchema(),
		Rows:   []source.Row{{int64(1), "a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 1, outcome.RowsCommitted)
	assert.False(t, outcome.PartialCommit)
	require.Len(t, ep.Calls(), 2)
	assert.Equal(t, ep.Calls()[0], ep.Calls()[1])
}

func TestExecuteFinishesChunkWhenCancelledInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ep := &testutil.Endpoint{Fail: func(call int, _ []string) error {
		// the interrupt arrives while the request is on the wire
		cancel()
		return nil
	}}
	e := NewExecutor(ep, fastRetry(), Options{}, nil)

	outcome, err := e.Execute(ctx, &Chunk{
		Schema: peopleSchema(),
		Rows:   []source.Row{{int64(1), "a"}, {int64(2), "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.RowsCommitted)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Len(t, ep.Calls(), 1)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestExecuteRetriesContinueAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ep := &testutil.Endpoint{Fail: func(call int, _ []string) error {
		if call == 1 {
			cancel()
			return errors.New(errors.ErrorTypeTransportTimeout, "request timed out")
		}
		return nil
	}}
	e := NewExecutor(ep, fastRetry(), Options{}, nil)

	outcome, err := e.Execute(ctx, &Chunk{
		Schema: peopleSchema(),
		Rows:   []source.Row{{int64(1), "a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 1, outcome.RowsCommitted)
}

func TestExecuteStatementErrorNotRetried(t *testing.T) {
	ep := &testutil.Endpoint{Fail: func(call int, _ []string) error {
		se := &edgesql.StatementError{Index: 2, Message: "UNIQUE constraint failed"}
		return errors.Wrap(se, errors.ErrorTypeQuery, "statement rejected")
	}}
	e := NewExecutor(ep, fastRetry(), Options{}, nil)

	outcome, err := e.Execute(context.Background(), &Chunk{
		Index:    1,
		FirstRow: 10,
		Schema:   peopleSchema(),
		Rows:     []source.Row{{int64(11), "a"}, {int64(12), "b"}},
	})
	require.Error(t, err)
	assert.Len(t, ep.Calls(), 1)
	assert.Equal(t, 1, outcome.Attempts)
	assert.True(t, errors.IsType(err, errors.ErrorTypeChunkExecution))

	var ce *errors.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Details["statement"])
	assert.Equal(t, int64(12), ce.Details["row"])
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")
}

func TestExecuteRetriesExhausted(t *testing.T) {
	ep := &testutil.Endpoint{Fail: func(int, []string) error {
		return errors.New(errors.ErrorTypeConnection, "connection reset")
	}}
	e := NewExecutor(ep, fastRetry(), Options{}, nil)

	outcome, err := e.Execute(context.Background(), &Chunk{Schema: peopleSchema(), Rows: []source.Row{{int64(1), "a"}}})
	require.Error(t, err)
	assert.Len(t, ep.Calls(), 3)
	assert.Equal(t, 3, outcome.Attempts)
	assert.True(t, errors.IsType(err, errors.ErrorTypeChunkExecution))
	assert.True(t, errors.HasType(err, errors.ErrorTypeConnection))
	assert.False(t, errors.IsRetryable(err))
}
