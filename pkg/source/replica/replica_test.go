package replica

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

var pageRe = regexp.MustCompile(`LIMIT (\d+) OFFSET (\d+)$`)

// fakeReplica answers hrana pipelines for a single "items" table.
type fakeReplica struct {
	mu sync.Mutex
	// sqlite_master type and sql of "items"; a plain table when empty
	kind     string
	ddl      string
	rows     [][]map[string]any
	selects  []string
	headers  http.Header
	failNext int
}

func (f *fakeReplica) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/v2/pipeline" {
		http.NotFound(w, r)
		return
	}
	f.headers = r.Header.Clone()
	if f.failNext > 0 {
		f.failNext--
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"bad token"}`))
		return
	}

	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var results []any
	for _, sr := range req.Requests {
		if sr.Type == "close" {
			results = append(results, map[string]any{"type": "ok", "response": map[string]any{"type": "close"}})
			continue
		}
		results = append(results, f.execute(sr.Stmt.SQL))
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"baton": nil, "results": results})
}

func col(name, decl string) map[string]any {
	return map[string]any{"name": name, "decltype": decl}
}

func (f *fakeReplica) execute(sql string) any {
	ok := func(cols []any, rows any) any {
		return map[string]any{"type": "ok", "response": map[string]any{
			"type":   "execute",
			"result": map[string]any{"cols": cols, "rows": rows},
		}}
	}
	switch {
	case strings.HasPrefix(sql, `PRAGMA table_info("items")`):
		text := func(s string) map[string]any { return map[string]any{"type": "text", "value": s} }
		integer := func(n int) map[string]any { return map[string]any{"type": "integer", "value": strconv.Itoa(n)} }
		null := map[string]any{"type": "null"}
		return ok(
			[]any{col("cid", ""), col("name", ""), col("type", ""), col("notnull", ""), col("dflt_value", ""), col("pk", "")},
			[][]any{
				{integer(0), text("id"), text("INTEGER"), integer(1), null, integer(1)},
				{integer(1), text("label"), text("TEXT"), integer(0), null, integer(0)},
				{integer(2), text("score"), text("REAL"), integer(0), null, integer(0)},
				{integer(3), text("embedding"), text("F32_BLOB(2)"), integer(0), null, integer(0)},
			})
	case strings.HasPrefix(sql, "SELECT type, sql FROM sqlite_master") && strings.HasSuffix(sql, "name='items';"):
		kind, ddl := f.kind, f.ddl
		if kind == "" {
			kind, ddl = "table", `CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT, score REAL, embedding F32_BLOB(2))`
		}
		text := func(s string) map[string]any { return map[string]any{"type": "text", "value": s} }
		return ok([]any{col("type", ""), col("sql", "")}, [][]any{{text(kind), text(ddl)}})
	case strings.HasPrefix(sql, `SELECT * FROM "items"`):
		f.selects = append(f.selects, sql)
		m := pageRe.FindStringSubmatch(sql)
		limit, _ := strconv.Atoi(m[1])
		offset, _ := strconv.Atoi(m[2])
		end := min(offset+limit, len(f.rows))
		page := [][]map[string]any{}
		if offset < len(f.rows) {
			page = f.rows[offset:end]
		}
		return ok([]any{col("id", "INTEGER"), col("label", "TEXT"), col("score", "REAL"), col("embedding", "F32_BLOB(2)")}, page)
	}
	return map[string]any{"type": "error", "error": map[string]any{"message": "no such table", "code": "SQLITE_ERROR"}}
}

func f32blob(vals ...float32) string {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return base64.RawStdEncoding.EncodeToString(b)
}

func seed(n int) [][]map[string]any {
	rows := make([][]map[string]any, n)
	for i := range rows {
		label := map[string]any{"type": "text", "value": "item-" + strconv.Itoa(i+1)}
		if i == 1 {
			label = map[string]any{"type": "null"}
		}
		rows[i] = []map[string]any{
			{"type": "integer", "value": strconv.Itoa(i + 1)},
			label,
			{"type": "float", "value": float64(i) + 0.5},
			{"type": "blob", "base64": f32blob(float32(i), 1)},
		}
	}
	return rows
}

func newReader(t *testing.T, url string, opts map[string]string) source.Reader {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Sources.Turso = config.TursoConfig{URL: url, AuthToken: "tok"}
	cfg.Reliability.RetryAttempts = 3
	cfg.Reliability.RetryDelay = time.Millisecond
	cfg.Reliability.MaxRetryDelay = 5 * time.Millisecond
	r, err := source.New(source.Spec{Kind: source.KindReplica, Table: "items", Options: opts}, cfg)
	require.NoError(t, err)
	return r
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

func TestPagesThroughTable(t *testing.T) {
	fake := &fakeReplica{rows: seed(25)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	r := newReader(t, srv.URL, map[string]string{OptionPageSize: "10", source.OptionEncryptionKey: "s3cret"})
	sch, seq, err := r.Open(context.Background())
	require.NoError(t, err)
	defer seq.Close()

	assert.Equal(t, []string{"id", "label", "score", "embedding"}, sch.Names())
	assert.Equal(t, schema.Integer, sch.Columns[0].Type)
	assert.False(t, sch.Columns[0].Nullable)
	assert.Equal(t, schema.Text, sch.Columns[1].Type)
	assert.Equal(t, schema.Vector(2), sch.Columns[3].Type)

	rows := drain(t, seq)
	require.Len(t, rows, 25)
	assert.Equal(t, source.Row{int64(1), "item-1", 0.5, []float64{0, 1}}, rows[0])
	assert.Nil(t, rows[1][1])
	assert.Equal(t, int64(25), rows[24][0])

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{
		`SELECT * FROM "items" ORDER BY rowid LIMIT 10 OFFSET 0`,
		`SELECT * FROM "items" ORDER BY rowid LIMIT 10 OFFSET 10`,
		`SELECT * FROM "items" ORDER BY rowid LIMIT 10 OFFSET 20`,
	}, fake.selects)
	assert.Equal(t, "s3cret", fake.headers.Get(EncryptionKeyHeader))
}

func TestExactPageBoundary(t *testing.T) {
	fake := &fakeReplica{rows: seed(20)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, seq, err := newReader(t, srv.URL, map[string]string{OptionPageSize: "10"}).Open(context.Background())
	require.NoError(t, err)
	defer seq.Close()

	assert.Len(t, drain(t, seq), 20)
	fake.mu.Lock()
	defer fake.mu.Unlock()
	// the third page comes back empty and ends the sequence
	assert.Len(t, fake.selects, 3)
	assert.Empty(t, fake.headers.Get(EncryptionKeyHeader))
}

func TestPageOrderFollowsTableKind(t *testing.T) {
	cases := []struct {
		name string
		kind string
		ddl  string
		want string
	}{
		{"without rowid", "table", "CREATE TABLE items (id INTEGER, label TEXT, score REAL, embedding F32_BLOB(2), PRIMARY KEY (id))\nWITHOUT  ROWID", `ORDER BY "id" LIMIT`},
		{"view", "view", "CREATE VIEW items AS SELECT * FROM base", `ORDER BY "id", "label", "score", "embedding" LIMIT`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeReplica{kind: tc.kind, ddl: tc.ddl, rows: seed(3)}
			srv := httptest.NewServer(fake)
			defer srv.Close()

			_, seq, err := newReader(t, srv.URL, nil).Open(context.Background())
			require.NoError(t, err)
			defer seq.Close()
			assert.Len(t, drain(t, seq), 3)

			fake.mu.Lock()
			defer fake.mu.Unlock()
			require.Len(t, fake.selects, 1)
			assert.Contains(t, fake.selects[0], tc.want)
		})
	}
}

func TestRetriesGatewayErrors(t *testing.T) {
	fake := &fakeReplica{rows: seed(3), failNext: 1}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, seq, err := newReader(t, srv.URL, nil).Open(context.Background())
	require.NoError(t, err)
	defer seq.Close()
	assert.Len(t, drain(t, seq), 3)
}

func TestStatementErrorIsUnavailable(t *testing.T) {
	fake := &fakeReplica{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := config.NewConfig()
	r, err := New(source.Spec{
		Kind:    source.KindReplica,
		Table:   "missing",
		Options: map[string]string{source.OptionURL: srv.URL, source.OptionToken: "tok"},
	}, cfg)
	require.NoError(t, err)

	_, _, err = r.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceUnavailable))
	assert.Contains(t, err.Error(), "no such table")
}

func TestBadToken(t *testing.T) {
	srv := httptest.NewServer(&fakeReplica{})
	defer srv.Close()

	r, err := New(source.Spec{
		Kind:    source.KindReplica,
		Table:   "items",
		Options: map[string]string{source.OptionURL: srv.URL, source.OptionToken: "nope"},
	}, config.NewConfig())
	require.NoError(t, err)

	_, _, err = r.Open(context.Background())
	assert.True(t, errors.HasType(err, errors.ErrorTypeAuthentication))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(source.Spec{Kind: source.KindReplica, Table: "items"}, config.NewConfig())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(source.Spec{
		Kind:    source.KindReplica,
		Table:   "items",
		Options: map[string]string{source.OptionURL: "http://x", source.OptionToken: "t", OptionPageSize: "0"},
	}, config.NewConfig())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestHTTPURL(t *testing.T) {
	assert.Equal(t, "https://db-org.turso.io", httpURL("libsql://db-org.turso.io/"))
	assert.Equal(t, "http://127.0.0.1:8080", httpURL("ws://127.0.0.1:8080"))
	assert.Equal(t, "https://x.io", httpURL("https://x.io"))
}

func TestDecodeValues(t *testing.T) {
	cases := []struct {
		raw  string
		want any
	}{
		{`{"type":"null"}`, nil},
		{`{"type":"integer","value":"9007199254740993"}`, int64(9007199254740993)},
		{`{"type":"float","value":2.5}`, 2.5},
		{`{"type":"text","value":"héllo"}`, "héllo"},
		{`{"type":"blob","base64":"AQID"}`, []byte{1, 2, 3}},
		{`{"type":"blob","base64":"AQI="}`, []byte{1, 2}},
	}
	for _, c := range cases {
		var v hranaValue
		require.NoError(t, json.Unmarshal([]byte(c.raw), &v))
		got, err := v.decode()
		require.NoError(t, err, c.raw)
		assert.Equal(t, c.want, got, c.raw)
	}

	_, err := hranaValue{Type: "weird"}.decode()
	assert.Error(t, err)
}
