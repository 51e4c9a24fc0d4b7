package relational

import (
	"context"
	"database/sql"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

func seedSQLite(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return path
}

func drain(t *testing.T, seq source.RowSequence) []source.Row {
	t.Helper()
	var rows []source.Row
	for {
		row, err := seq.Next(context.Background())
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestSQLiteTable(t *testing.T) {
	path := seedSQLite(t,
		`CREATE TABLE products (id INTEGER, name TEXT, price REAL, image BLOB, embedding F32_BLOB(3))`,
		`INSERT INTO products VALUES (1, 'lamp', 9.5, x'0102', '[1,2,3]')`,
		`INSERT INTO products VALUES (2, NULL, 12, NULL, '[4,5,6]')`,
	)

	r, err := source.New(source.Spec{
		Kind:     source.KindRelational,
		Location: "sqlite3",
		Table:    "products",
		Options:  map[string]string{source.OptionDSN: path},
	}, config.NewConfig())
	require.NoError(t, err)

	sch, seq, err := r.Open(context.Background())
	require.NoError(t, err)
	defer seq.Close()

	assert.Equal(t, []string{"id", "name", "price", "image", "embedding"}, sch.Names())
	assert.Equal(t, schema.Integer, sch.Columns[0].Type)
	assert.Equal(t, schema.Text, sch.Columns[1].Type)
	assert.Equal(t, schema.Real, sch.Columns[2].Type)
	assert.Equal(t, schema.Blob, sch.Columns[3].Type)
	assert.Equal(t, schema.KindVector, sch.Columns[4].Type.Kind)
	assert.Equal(t, 3, sch.Columns[4].Type.Dim)

	rows := drain(t, seq)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0][0])
	assert.Equal(t, "lamp", rows[0][1])
	assert.Equal(t, 9.5, rows[0][2])
	assert.Equal(t, []byte{1, 2}, rows[0][3])
	assert.Equal(t, "[1,2,3]", rows[0][4])
	assert.Nil(t, rows[1][1])
	assert.Equal(t, 12.0, rows[1][2])
}

func TestSQLiteUntypedColumnsAreInferred(t *testing.T) {
	path := seedSQLite(t,
		`CREATE TABLE loose (a, b)`,
		`INSERT INTO loose VALUES (1, 'x')`,
		`INSERT INTO loose VALUES (2, 'y')`,
	)

	r, err := New(source.Spec{
		Kind:     source.KindRelational,
		Location: SQLite,
		Table:    "loose",
		Options:  map[string]string{source.OptionDSN: path},
	}, config.NewConfig())
	require.NoError(t, err)

	sch, seq, err := r.Open(context.Background())
	require.NoError(t, err)
	defer seq.Close()

	assert.Equal(t, schema.Integer, sch.Columns[0].Type)
	assert.Equal(t, schema.Text, sch.Columns[1].Type)
	assert.Len(t, drain(t, seq), 2)
}

func TestMissingTableIsUnavailable(t *testing.T) {
	path := seedSQLite(t, `CREATE TABLE other (a INTEGER)`)
	r, err := New(source.Spec{
		Kind:     source.KindRelational,
		Location: SQLite,
		Table:    "absent",
		Options:  map[string]string{source.OptionDSN: path},
	}, config.NewConfig())
	require.NoError(t, err)

	_, _, err = r.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceUnavailable))
}

func TestNewRejectsBadSpecs(t *testing.T) {
	_, err := New(source.Spec{Kind: source.KindRelational, Location: "oracle", Table: "t"}, config.NewConfig())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(source.Spec{Kind: source.KindRelational, Location: Postgres}, config.NewConfig())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestMissingCredentials(t *testing.T) {
	r, err := New(source.Spec{Kind: source.KindRelational, Location: MySQL, Table: "t"}, config.NewConfig())
	require.NoError(t, err)
	_, _, err = r.Open(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestQuoteTable(t *testing.T) {
	assert.Equal(t, `"public"."users"`, QuoteTable(Postgres, "public.users"))
	assert.Equal(t, "`we``ird`", QuoteTable(MySQL, "we`ird"))
	assert.Equal(t, `DB.SALES`, QuoteTable(Snowflake, "DB.SALES"))
	assert.Equal(t, `"my table"`, QuoteTable(Snowflake, "my table"))
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := postgresDSN(&config.RelationalConfig{
		Username: "app", Password: "p@ss", Host: "localhost",
	}, "shop")
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "localhost:5432", u.Host)
	assert.Equal(t, "/shop", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))

	// a remote host without certificates leaves sslmode to the driver default
	dsn, err = postgresDSN(&config.RelationalConfig{
		Username: "app", Password: "x", Host: "db.example.com", Port: 6543,
	}, "")
	require.NoError(t, err)
	assert.Contains(t, dsn, "db.example.com:6543/postgres")
	assert.NotContains(t, dsn, "sslmode")
}

func TestMySQLDSN(t *testing.T) {
	dsn, err := mysqlDSN(&config.RelationalConfig{
		Username: "root", Password: "secret", Host: "127.0.0.1",
	}, "shop")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "root:secret@tcp(127.0.0.1:3306)/shop"))
	assert.Contains(t, dsn, "parseTime=true")
	assert.NotContains(t, dsn, "tls=")
}

func TestSnowflakeDSN(t *testing.T) {
	_, err := snowflakeDSN(&config.SnowflakeConfig{Account: "acct"}, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	dsn, err := snowflakeDSN(&config.SnowflakeConfig{
		Account: "acct", User: "loader", Password: "pw", Warehouse: "WH",
	}, "ANALYTICS")
	require.NoError(t, err)
	assert.Contains(t, dsn, "loader:pw@")
	assert.Contains(t, dsn, "warehouse=WH")
}

func TestSQLValue(t *testing.T) {
	assert.Equal(t, int64(42), sqlValue([]byte("42"), schema.Integer, true))
	assert.Equal(t, 1.25, sqlValue([]byte("1.25"), schema.Integer, true))
	assert.Equal(t, 3.5, sqlValue("3.5", schema.Real, true))
	assert.Equal(t, "007", sqlValue([]byte("007"), schema.Text, true))
	assert.Equal(t, int64(7), sqlValue([]byte("7"), schema.ColumnType{}, false))
	assert.Equal(t, []byte{0xff, 0x00}, sqlValue([]byte{0xff, 0x00}, schema.ColumnType{}, false))
	assert.Equal(t, int64(3), sqlValue(int32(3), schema.Integer, true))
	assert.Nil(t, sqlValue(nil, schema.Text, true))
}

func TestPGValue(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id.String(), pgValue([16]byte(id)))
	assert.Equal(t, int64(5), pgValue(int32(5)))
	assert.Equal(t, []float64{1, 2}, pgValue([]any{int32(1), 2.0}))
	assert.Equal(t, `{"a":1}`, pgValue(map[string]any{"a": 1}))
}
