package replica

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/ajitpratap0/edgesql/pkg/clients"
	"github.com/ajitpratap0/edgesql/pkg/errors"
)

// EncryptionKeyHeader carries the replica encryption key.
const EncryptionKeyHeader = "x-turso-encryption-key"

type pipelineRequest struct {
	Baton    *string         `json:"baton"`
	Requests []streamRequest `json:"requests"`
}

type streamRequest struct {
	Type string `json:"type"`
	Stmt *stmt  `json:"stmt,omitempty"`
}

type stmt struct {
	SQL string `json:"sql"`
}

type pipelineResponse struct {
	Baton   *string        `json:"baton"`
	Results []streamResult `json:"results"`
}

type streamResult struct {
	Type     string          `json:"type"`
	Response *streamResponse `json:"response"`
	Error    *hranaError     `json:"error"`
}

type hranaError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type streamResponse struct {
	Type   string      `json:"type"`
	Result *stmtResult `json:"result"`
}

type stmtResult struct {
	Cols []hranaCol     `json:"cols"`
	Rows [][]hranaValue `json:"rows"`
}

type hranaCol struct {
	Name     *string `json:"name"`
	Decltype *string `json:"decltype"`
}

type hranaValue struct {
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value"`
	Base64 string          `json:"base64"`
}

// decode converts a wire value. Integers travel as decimal strings so
// 64-bit values survive JSON.
func (v hranaValue) decode() (any, error) {
	switch v.Type {
	case "null", "":
		return nil, nil
	case "integer":
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil, err
		}
		return strconv.ParseInt(s, 10, 64)
	case "float":
		var f float64
		if err := json.Unmarshal(v.Value, &f); err != nil {
			return nil, err
		}
		return f, nil
	case "text":
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil, err
		}
		return s, nil
	case "blob":
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(v.Base64, "="))
	}
	return nil, errors.Newf(errors.ErrorTypeValidation, "unknown value type %q", v.Type)
}

// pipeline talks to a libSQL server's hrana v2 HTTP endpoint.
type pipeline struct {
	url           string
	token         string
	encryptionKey string
	http          *clients.HTTPClient
}

// execute runs statements in one stateless pipeline and returns their
// results in order. The first failed statement is returned as a query
// error naming its index.
func (p *pipeline) execute(ctx context.Context, sqls ...string) ([]*stmtResult, error) {
	req := pipelineRequest{Requests: make([]streamRequest, 0, len(sqls)+1)}
	for _, s := range sqls {
		req.Requests = append(req.Requests, streamRequest{Type: "execute", Stmt: &stmt{SQL: s}})
	}
	req.Requests = append(req.Requests, streamRequest{Type: "close"})

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode pipeline request")
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/v2/pipeline", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid replica URL")
	}
	hreq.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+p.token)
	}
	if p.encryptionKey != "" {
		hreq.Header.Set(EncryptionKeyHeader, p.encryptionKey)
	}

	resp, err := p.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	data, err := p.http.ReadBody(ctx, resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var he hranaError
		_ = json.Unmarshal(data, &he)
		msg := he.Message
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, clients.StatusError(resp.StatusCode, msg)
	}

	var out pipelineResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "invalid pipeline response")
	}
	if len(out.Results) < len(sqls) {
		return nil, errors.Newf(errors.ErrorTypeQuery, "pipeline returned %d results for %d statements",
			len(out.Results), len(sqls))
	}

	results := make([]*stmtResult, len(sqls))
	for i := range sqls {
		r := out.Results[i]
		if r.Type == "error" || r.Error != nil {
			msg := "statement failed"
			if r.Error != nil {
				msg = r.Error.Message
			}
			return nil, errors.New(errors.ErrorTypeQuery, msg).
				WithDetail("statement", i).
				WithDetail("sql", sqls[i])
		}
		if r.Response == nil || r.Response.Result == nil {
			return nil, errors.Newf(errors.ErrorTypeQuery, "statement %d returned no result", i)
		}
		results[i] = r.Response.Result
	}
	return results, nil
}
