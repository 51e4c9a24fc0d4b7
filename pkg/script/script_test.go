package script

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/edgesql/pkg/edgesql"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/retry"
	"github.com/ajitpratap0/edgesql/pkg/testutil"
)

func TestSplit(t *testing.T) {
	src := `-- dump header
PRAGMA foreign_keys=OFF;
BEGIN TRANSACTION;
CREATE TABLE t (id INTEGER, note TEXT);
INSERT INTO t VALUES (1, 'semi; colon');
INSERT INTO t VALUES (2, 'it''s -- not a comment');
/* block
   comment; */ INSERT INTO "odd;name" VALUES (3, NULL);
COMMIT;
SELECT 1`

	stmts, err := Split(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"PRAGMA foreign_keys=OFF;",
		"CREATE TABLE t (id INTEGER, note TEXT);",
		"INSERT INTO t VALUES (1, 'semi; colon');",
		"INSERT INTO t VALUES (2, 'it''s -- not a comment');",
		`INSERT INTO "odd;name" VALUES (3, NULL);`,
		"SELECT 1;",
	}, stmts)
}

func TestSplitKeepsTriggerBody(t *testing.T) {
	src := `CREATE TRIGGER audit AFTER INSERT ON t BEGIN
  INSERT INTO log VALUES (new.id);
  UPDATE stats SET n = n + 1;
END;
begin;
select 2;`

	stmts, err := Split(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TRIGGER audit"))
	assert.True(t, strings.HasSuffix(stmts[0], "END;"))
	assert.Equal(t, "select 2;", stmts[1])
}

func TestSplitUnterminatedQuote(t *testing.T) {
	_, err := Split(strings.NewReader("SELECT 1;\nINSERT INTO t VALUES ('oops);"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	line, ok := errors.Wrap(err, errors.ErrorTypeValidation, "x").Detail("line")
	assert.True(t, ok)
	assert.Equal(t, 2, line)
}

func inserts(n, width int) []string {
	out := make([]string, n)
	for i := range out {
		s := fmt.Sprintf("INSERT INTO t VALUES (%d, '", i)
		out[i] = s + strings.Repeat("x", width-len(s)-3) + "');"
	}
	return out
}

func TestRunnerGroupsByPayload(t *testing.T) {
	rec := &testutil.Endpoint{}
	// 100-byte statements with a 10000-byte limit: 85 per group after the first
	r, err := NewRunner(rec, 10000, nil, nil)
	require.NoError(t, err)

	stmts := inserts(300, 100)
	res, err := r.Run(testutil.Context(t), stmts)
	require.NoError(t, err)
	assert.Equal(t, 300, res.Statements)

	require.GreaterOrEqual(t, len(rec.Calls()), 2)
	assert.Len(t, rec.Calls()[0], 1)
	assert.Len(t, rec.Calls()[1], 85)
	var sent []string
	for _, g := range rec.Calls() {
		sent = append(sent, g...)
	}
	assert.Equal(t, stmts, sent)
	assert.Equal(t, len(rec.Calls()), res.Groups)
}

func TestRunnerCapsGroupsAt512(t *testing.T) {
	rec := &testutil.Endpoint{}
	r, err := NewRunner(rec, 1<<20, nil, nil)
	require.NoError(t, err)

	_, err = r.Run(testutil.Context(t), inserts(1200, 40))
	require.NoError(t, err)
	for _, g := range rec.Calls() {
		assert.LessOrEqual(t, len(g), 512)
	}
	assert.Len(t, rec.Calls()[1], 512)
}

func TestRunnerStopsAtStatementError(t *testing.T) {
	rec := &testutil.Endpoint{Fail: func(call int, statements []string) error {
		if call == 2 {
			se := &edgesql.StatementError{Index: 3, Message: "no such table: u"}
			return errors.Wrap(se, errors.ErrorTypeQuery, "statement rejected")
		}
		return nil
	}}
	r, err := NewRunner(rec, 10000, nil, nil)
	require.NoError(t, err)

	stmts := inserts(200, 100)
	res, err := r.Run(testutil.Context(t), stmts)
	require.Error(t, err)

	// group 1 holds statement 1, group 2 starts at statement 2
	n, ok := errors.Wrap(err, errors.ErrorTypeQuery, "x").Detail("statement")
	require.True(t, ok)
	assert.Equal(t, 5, n)
	assert.Equal(t, 4, res.Statements)
	assert.Len(t, rec.Calls(), 2)
	assert.Contains(t, err.Error(), "no such table")
}

func TestRunnerRetriesRateLimitOnly(t *testing.T) {
	rec := &testutil.Endpoint{Fail: func(call int, statements []string) error {
		switch call {
		case 1:
			return errors.New(errors.ErrorTypeRateLimit, "slow down")
		case 3:
			return errors.New(errors.ErrorTypeTransportTimeout, "deadline")
		}
		return nil
	}}
	policy := &retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	r, err := NewRunner(rec, 10000, policy, nil)
	require.NoError(t, err)

	res, err := r.Run(testutil.Context(t), inserts(50, 100))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeChunkExecution))
	assert.Len(t, rec.Calls(), 3)
	assert.Equal(t, 1, res.Statements)
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := NewRunner(&testutil.Endpoint{}, 10000, nil, nil)
	require.NoError(t, err)

	res, err := r.Run(ctx, inserts(5, 100))
	require.Error(t, err)
	assert.Equal(t, 0, res.Statements)
}

func TestRunnerFinishesGroupInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &testutil.Endpoint{Fail: func(call int, _ []string) error {
		if call == 1 {
			cancel()
		}
		return nil
	}}
	// 100-byte statements: the first group holds a single statement
	r, err := NewRunner(rec, 10000, nil, nil)
	require.NoError(t, err)

	res, err := r.Run(ctx, inserts(20, 100))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rec.Calls(), 1)
	assert.Equal(t, 1, res.Statements)
	assert.Equal(t, 1, res.Groups)
}

func TestNewRunnerRejectsZeroPayload(t *testing.T) {
	_, err := NewRunner(&testutil.Endpoint{}, 0, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
