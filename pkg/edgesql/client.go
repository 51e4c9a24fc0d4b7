// Package edgesql is the client for the Azion Edge SQL HTTP API: database
// listing, lookup, creation and deletion, and execution of statement groups
// against one database.
package edgesql

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/edgesql/pkg/clients"
	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
	"github.com/ajitpratap0/edgesql/pkg/schema"
)

// Client talks to the EdgeSQL API. A Client is bound to at most one
// database; use WithDatabase to switch.
type Client struct {
	baseURL  string
	token    string
	database string
	http     *clients.HTTPClient
	logger   *zap.Logger
}

// NewClient creates a client from the endpoint configuration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := cfg.Endpoint.BaseURL
	if base == "" {
		base = config.DefaultBaseURL
	}
	return &Client{
		baseURL:  strings.TrimRight(base, "/"),
		token:    cfg.Endpoint.Token,
		database: cfg.Endpoint.Database,
		http:     clients.NewHTTPClient(clients.HTTPConfigFrom("edgesql", cfg), logger),
		logger:   logger.With(zap.String("component", "edgesql")),
	}
}

// WithDatabase returns a copy bound to the database id.
func (c *Client) WithDatabase(id string) *Client {
	cp := *c
	cp.database = id
	return &cp
}

// Database returns the bound database id.
func (c *Client) Database() string {
	return c.database
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// ListDatabases returns every database visible to the token.
func (c *Client) ListDatabases(ctx context.Context) ([]Database, error) {
	var out listResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetDatabase fetches one database by id.
func (c *Client) GetDatabase(ctx context.Context, id string) (*Database, error) {
	var out getResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+id, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, errors.New(errors.ErrorTypeNotFound, "database information not found in response").
			WithDetail("database", id)
	}
	return out.Data, nil
}

// CreateDatabase creates a database and returns it as the service
// reports it. Creation is asynchronous; the status starts as "creating".
func (c *Client) CreateDatabase(ctx context.Context, name string) (*Database, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "database name cannot be empty")
	}
	body, err := json.Marshal(createRequest{Name: name})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode request")
	}

	var out getResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL, body, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, errors.New(errors.ErrorTypeQuery, "unexpected response format").
			WithDetail("database", name)
	}
	return out.Data, nil
}

// DeleteDatabase destroys the database with the given id.
func (c *Client) DeleteDatabase(ctx context.Context, id string) error {
	if id == "" {
		return errors.New(errors.ErrorTypeValidation, "database id cannot be empty")
	}
	return c.do(ctx, http.MethodDelete, c.baseURL+"/"+id, nil, nil)
}

// Resolve returns the id of the database named or numbered idOrName.
// Names take precedence over numeric ids.
func (c *Client) Resolve(ctx context.Context, idOrName string) (string, error) {
	dbs, err := c.ListDatabases(ctx)
	if err != nil {
		return "", err
	}
	for _, db := range dbs {
		if db.Name == idOrName {
			return strconv.FormatInt(db.ID, 10), nil
		}
	}
	for _, db := range dbs {
		if strconv.FormatInt(db.ID, 10) == idOrName {
			return idOrName, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeNotFound, "database '%s' not found", idOrName).
		WithDetail("database", idOrName)
}

// Execute submits statements as one request and returns one result per
// statement. The first statement the service rejects is returned as a
// query error wrapping *StatementError; transport failures are retryable
// errors from pkg/clients.
func (c *Client) Execute(ctx context.Context, statements []string) ([]StatementResult, error) {
	if c.database == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "no database selected")
	}
	if len(statements) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "no SQL statements provided")
	}

	body, err := json.Marshal(queryRequest{Statements: statements})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode statements")
	}

	var out queryResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/"+c.database+"/query", body, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, errors.New(errors.ErrorTypeQuery, "empty or invalid response data")
	}

	results := make([]StatementResult, len(out.Data))
	for i, entry := range out.Data {
		if entry.Error != "" {
			se := &StatementError{Index: i, Message: entry.Error}
			return results[:i], errors.Wrap(se, errors.ErrorTypeQuery, "statement rejected").
				WithDetail("statement", i)
		}
		if entry.Results != nil {
			results[i] = *entry.Results
		}
	}
	return results, nil
}

// TableExists reports whether table is present in the bound database.
func (c *Client) TableExists(ctx context.Context, table string) (bool, error) {
	res, err := c.Execute(ctx, []string{schema.ExistsSQL(table)})
	if err != nil {
		return false, err
	}
	return len(res) > 0 && len(res[0].Rows) > 0, nil
}

// DescribeTable returns the existing schema of table, or nil when the
// table does not exist.
func (c *Client) DescribeTable(ctx context.Context, table string) (*schema.TargetSchema, error) {
	exists, err := c.TableExists(ctx, table)
	if err != nil || !exists {
		return nil, err
	}
	res, err := c.Execute(ctx, []string{schema.DescribeSQL(table)})
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return schema.FromTableInfo(table, TableInfoRows(res[0])), nil
}

// TableInfoRows converts a PRAGMA table_info result into rows. Columns are
// located by name so column order in the response does not matter.
func TableInfoRows(res StatementResult) []schema.TableInfoRow {
	col := map[string]int{"name": 1, "type": 2, "notnull": 3, "dflt_value": 4, "pk": 5}
	for i, name := range res.Columns {
		if _, ok := col[name]; ok {
			col[name] = i
		}
	}
	at := func(row []any, name string) any {
		if i := col[name]; i < len(row) {
			return row[i]
		}
		return nil
	}

	rows := make([]schema.TableInfoRow, 0, len(res.Rows))
	for _, r := range res.Rows {
		name, _ := at(r, "name").(string)
		declared, _ := at(r, "type").(string)
		rows = append(rows, schema.TableInfoRow{
			Name:       name,
			Declared:   declared,
			NotNull:    truthy(at(r, "notnull")),
			HasDefault: at(r, "dflt_value") != nil,
			PrimaryKey: truthy(at(r, "pk")),
		})
	}
	return rows
}

func truthy(v any) bool {
	switch n := v.(type) {
	case float64:
		return n != 0
	case int64:
		return n != 0
	case int:
		return n != 0
	case bool:
		return n
	case string:
		return n != "" && n != "0"
	}
	return false
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid request")
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	data, err := c.http.ReadBody(ctx, resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		c.logger.Debug("request rejected",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.String("message", er.message()))
		return clients.StatusError(resp.StatusCode, er.message())
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "invalid response body")
	}
	return nil
}
