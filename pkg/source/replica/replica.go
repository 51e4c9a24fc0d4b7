// Package replica reads a table from a libSQL or Turso database over the
// hrana v2 HTTP pipeline.
//
// Rows are fetched in pages with LIMIT/OFFSET, so a sequence holds no
// server-side cursor between calls. Pages are ordered by rowid, by the
// primary key for WITHOUT ROWID tables, and by every column for views.
// Declared column types come from PRAGMA table_info.
package replica

import (
	"context"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/edgesql/pkg/clients"
	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/logger"
	"github.com/ajitpratap0/edgesql/pkg/retry"
	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
	"github.com/ajitpratap0/edgesql/pkg/vector"
)

// OptionPageSize overrides the number of rows fetched per request.
const OptionPageSize = "page_size"

// DefaultPageSize is the rows fetched per request.
const DefaultPageSize = 1000

func init() {
	source.Register(source.KindReplica, New)
}

// Reader pages through one replica table.
type Reader struct {
	spec     source.Spec
	cfg      *config.Config
	table    string
	pageSize int
	orderBy  string
	client   *pipeline
	retry    *retry.Policy
	logger   *zap.Logger
}

// New resolves the replica URL and credentials from the spec options,
// falling back to config.
func New(spec source.Spec, cfg *config.Config) (source.Reader, error) {
	table := spec.Table
	if table == "" {
		table = spec.Location
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "replica source needs a table name")
	}

	turso := cfg.Sources.Turso
	url := spec.Option(source.OptionURL, turso.URL)
	token := spec.Option(source.OptionToken, turso.AuthToken)
	if url == "" || token == "" {
		return nil, errors.New(errors.ErrorTypeConfig,
			"replica URL and auth token are required: set TURSO_DATABASE_URL and TURSO_AUTH_TOKEN")
	}

	pageSize := DefaultPageSize
	if v := spec.Option(OptionPageSize, ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "invalid page size %q", v)
		}
		pageSize = n
	}

	log := logger.With(zap.String("source", "replica"), zap.String("table", table))
	return &Reader{
		spec:     spec,
		cfg:      cfg,
		table:    table,
		pageSize: pageSize,
		client: &pipeline{
			url:           httpURL(url),
			token:         token,
			encryptionKey: spec.Option(source.OptionEncryptionKey, turso.EncryptionKey),
			http:          clients.NewHTTPClient(clients.HTTPConfigFrom("replica", cfg), log),
		},
		retry:  retry.FromConfig(cfg.Reliability),
		logger: log,
	}, nil
}

// httpURL maps libsql:// URLs onto https and drops a trailing slash.
func httpURL(u string) string {
	u = strings.TrimRight(u, "/")
	switch {
	case strings.HasPrefix(u, "libsql://"):
		return "https://" + strings.TrimPrefix(u, "libsql://")
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	}
	return u
}

// Open loads the table's layout, then the first page.
func (r *Reader) Open(ctx context.Context) (*schema.SourceSchema, source.RowSequence, error) {
	var results []*stmtResult
	_, err := r.retry.Do(ctx, func(int) error {
		var err error
		results, err = r.client.execute(ctx, schema.DescribeSQL(r.table), masterSQL(r.table))
		return err
	}, nil)
	if err != nil {
		return nil, nil, source.Unavailable(err, r.spec, "failed to query replica")
	}
	info := readTableInfo(results[0])
	kind, ddl := masterEntry(results[1])
	if kind == "" || len(info.names) == 0 {
		return nil, nil, source.Unavailable(
			errors.Newf(errors.ErrorTypeNotFound, "no such table: %s", r.table), r.spec, "failed to query replica")
	}
	r.orderBy = info.orderBy(kind, ddl)

	_, err = r.retry.Do(ctx, func(int) error {
		var err error
		results, err = r.client.execute(ctx, r.pageSQL(0))
		return err
	}, nil)
	if err != nil {
		return nil, nil, source.Unavailable(err, r.spec, "failed to query replica")
	}
	page := results[0]

	names := make([]string, len(page.Cols))
	decls := make([]string, len(page.Cols))
	for i, c := range page.Cols {
		if c.Name != nil {
			names[i] = *c.Name
		}
		if c.Decltype != nil {
			decls[i] = *c.Decltype
		}
	}

	in := schema.NewInferrer(names)
	types := make([]schema.ColumnType, len(names))
	for i, name := range names {
		d, ok := info.columns[strings.ToLower(name)]
		if decls[i] == "" && ok {
			decls[i] = d.Declared
		}
		ct, known := declare(decls[i])
		types[i] = ct
		if known {
			in.Declare(i, ct, !ok || d.Nullable, decls[i])
		}
	}

	seq := &pageSequence{reader: r, types: types}
	if err := seq.load(page); err != nil {
		seq.Close()
		return nil, nil, err
	}
	r.logger.Debug("replica opened",
		zap.Int("columns", len(names)),
		zap.Int("page_size", r.pageSize),
		zap.String("order_by", r.orderBy))
	return source.InferSchema(ctx, in, r.spec, seq, r.cfg.Import.SampleRows)
}

func (r *Reader) pageSQL(offset int64) string {
	return "SELECT * FROM " + schema.QuoteIdent(r.table) + " ORDER BY " + r.orderBy +
		" LIMIT " + strconv.Itoa(r.pageSize) + " OFFSET " + strconv.FormatInt(offset, 10)
}

func masterSQL(table string) string {
	return "SELECT type, sql FROM sqlite_master WHERE type IN ('table', 'view') AND name=" +
		schema.QuoteString(table) + ";"
}

func masterEntry(res *stmtResult) (kind, ddl string) {
	if len(res.Rows) == 0 || len(res.Rows[0]) < 2 {
		return "", ""
	}
	t, _ := res.Rows[0][0].decode()
	sql, _ := res.Rows[0][1].decode()
	kind, _ = t.(string)
	ddl, _ = sql.(string)
	return kind, ddl
}

// tableInfo is the result of PRAGMA table_info.
type tableInfo struct {
	names   []string
	columns map[string]schema.ColumnDescriptor
	// primary key columns in key order
	pk []string
}

func readTableInfo(res *stmtResult) *tableInfo {
	col := map[string]int{"name": 1, "type": 2, "notnull": 3, "pk": 5}
	for i, c := range res.Cols {
		if c.Name == nil {
			continue
		}
		if _, ok := col[*c.Name]; ok {
			col[*c.Name] = i
		}
	}

	info := &tableInfo{columns: make(map[string]schema.ColumnDescriptor, len(res.Rows))}
	keys := map[int64]string{}
	for _, row := range res.Rows {
		var vals [4]any
		for j, key := range []string{"name", "type", "notnull", "pk"} {
			if i := col[key]; i < len(row) {
				vals[j], _ = row[i].decode()
			}
		}
		name, _ := vals[0].(string)
		decl, _ := vals[1].(string)
		notNull, _ := vals[2].(int64)
		pk, _ := vals[3].(int64)
		info.names = append(info.names, name)
		info.columns[strings.ToLower(name)] = schema.ColumnDescriptor{Name: name, Declared: decl, Nullable: notNull == 0}
		if pk > 0 {
			keys[pk] = name
		}
	}
	for i := int64(1); i <= int64(len(keys)); i++ {
		if name, ok := keys[i]; ok {
			info.pk = append(info.pk, name)
		}
	}
	return info
}

// orderBy returns a stable ORDER BY list so LIMIT/OFFSET pages neither
// skip nor repeat rows.
func (info *tableInfo) orderBy(kind, ddl string) string {
	cols := info.names
	switch {
	case kind == "table" && !withoutRowid(ddl):
		return "rowid"
	case kind == "table" && len(info.pk) > 0:
		cols = info.pk
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = schema.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func withoutRowid(ddl string) bool {
	return strings.Contains(strings.ToUpper(strings.Join(strings.Fields(ddl), " ")), "WITHOUT ROWID")
}

// declare maps a declared type. Compressed vector encodings are copied as
// raw blobs; untyped columns are left to inference.
func declare(decl string) (schema.ColumnType, bool) {
	if strings.TrimSpace(decl) == "" {
		return schema.ColumnType{}, false
	}
	ct, err := schema.ParseDeclaredType(decl)
	if err != nil {
		return schema.Blob, true
	}
	if ct.Kind == schema.KindAny {
		return ct, false
	}
	return ct, true
}

type pageSequence struct {
	reader *Reader
	types  []schema.ColumnType
	buf    []source.Row
	pos    int
	offset int64
	done   bool
}

func (s *pageSequence) load(page *stmtResult) error {
	s.buf = s.buf[:0]
	s.pos = 0
	for n, raw := range page.Rows {
		if len(raw) != len(s.types) {
			return errors.Newf(errors.ErrorTypeSourceUnavailable,
				"replica row has %d values, expected %d", len(raw), len(s.types)).
				WithDetail("row", s.offset+int64(n)+1)
		}
		row := make(source.Row, len(raw))
		for i, v := range raw {
			val, err := v.decode()
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeSourceUnavailable, "invalid replica value").
					WithDetail("row", s.offset+int64(n)+1)
			}
			row[i] = s.convert(val, i)
		}
		s.buf = append(s.buf, row)
	}
	s.offset += int64(len(page.Rows))
	s.done = len(page.Rows) < s.reader.pageSize
	return nil
}

// convert decodes binary vectors stored in typed vector columns.
func (s *pageSequence) convert(v any, i int) any {
	b, ok := v.([]byte)
	if !ok || s.types[i].Kind != schema.KindVector {
		return v
	}
	vals, err := vector.Decode(s.types[i].Format, b)
	if err != nil {
		return v
	}
	return vals
}

func (s *pageSequence) Next(ctx context.Context) (source.Row, error) {
	for s.pos >= len(s.buf) {
		if s.done {
			return nil, io.EOF
		}
		if err := s.fetch(ctx); err != nil {
			return nil, err
		}
	}
	row := s.buf[s.pos]
	s.pos++
	return row, nil
}

func (s *pageSequence) fetch(ctx context.Context) error {
	r := s.reader
	var results []*stmtResult
	_, err := r.retry.Do(ctx, func(int) error {
		var err error
		results, err = r.client.execute(ctx, r.pageSQL(s.offset))
		return err
	}, nil)
	if err != nil {
		return source.Unavailable(err, r.spec, "failed to fetch replica page").
			WithDetail("offset", s.offset)
	}
	return s.load(results[0])
}

func (s *pageSequence) Close() error {
	s.buf = nil
	s.done = true
	return s.reader.client.http.Close()
}
