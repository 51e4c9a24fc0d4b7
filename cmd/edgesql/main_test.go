package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/edgesql/internal/importer"
	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/edgesql"
	"github.com/ajitpratap0/edgesql/pkg/source"
)

func TestVersionSkipsSetup(t *testing.T) {
	a := &app{v: config.NewViper()}
	root := a.rootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "edgesql v"+version)
	assert.Nil(t, a.cfg)
}

func TestFlagsOverrideConfig(t *testing.T) {
	a := &app{v: config.NewViper()}
	root := a.rootCommand()
	require.NoError(t, root.ParseFlags([]string{"--token", "flag-token", "--database", "shop", "--log-level", "warn"}))

	require.NoError(t, a.setup(root, nil))
	defer a.teardown(root, nil)

	assert.Equal(t, "flag-token", a.cfg.Endpoint.Token)
	assert.Equal(t, "shop", a.cfg.Endpoint.Database)
	assert.Equal(t, "warn", a.cfg.Observability.LogLevel)
}

func TestClientRequiresToken(t *testing.T) {
	a := &app{cfg: config.NewConfig()}
	_, err := a.client(context.Background(), true)
	assert.Error(t, err)
}

func TestPrintResults(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, []edgesql.StatementResult{
		{},
		{Columns: []string{"id", "name", "score"}, Rows: [][]any{{float64(1), "a", 2.5}, {float64(2), nil, float64(3)}}},
	})
	assert.Equal(t, "id\tname\tscore\n1\ta\t2.5\n2\tNULL\t3\n", out.String())
}

func TestPrintDatabases(t *testing.T) {
	var out bytes.Buffer
	printDatabases(&out, []edgesql.Database{{ID: 42, Name: "shop", Status: "active", CreatedAt: "2024-01-01"}})
	assert.Contains(t, out.String(), "ID")
	assert.Contains(t, out.String(), "42")
	assert.Contains(t, out.String(), "shop")
}

func TestDatabaseCreateAndDestroy(t *testing.T) {
	var deleted atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"data":{"id":12,"name":"shop","status":"creating"}}`)
		case r.Method == http.MethodGet:
			_, _ = io.WriteString(w, `{"count":1,"results":[{"id":12,"name":"shop","status":"created"}]}`)
		case r.Method == http.MethodDelete:
			deleted.Store(r.URL.Path)
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer srv.Close()

	run := func(args ...string) string {
		a := &app{v: config.NewViper()}
		root := a.rootCommand()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(append([]string{"--token", "t", "--url", srv.URL + "/databases"}, args...))
		require.NoError(t, root.ExecuteContext(context.Background()))
		return out.String()
	}

	assert.Equal(t, "New database created. ID: 12, Name: shop\n", run("databases", "create", "shop"))
	assert.Equal(t, "Database deleted successfully.\n", run("databases", "destroy", "shop"))
	assert.Equal(t, "/databases/12", deleted.Load())
}

func TestImportOptions(t *testing.T) {
	f := importFlags{vector: "embedding:3"}
	opts := f.options(map[string]string{source.OptionDelimiter: ";", source.OptionSheet: ""})
	assert.Equal(t, map[string]string{source.OptionVector: "embedding:3", source.OptionDelimiter: ";"}, opts)

	assert.Equal(t, "dst", targetName("dst", "src"))
	assert.Equal(t, "src", targetName("", "src"))
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, &importer.Result{RowsCommitted: 4000, ChunksCommitted: 4, ChunksFailed: 1, Elapsed: 1500 * time.Millisecond, Err: errors.New("boom")})
	assert.Equal(t, "Import failed: 4000 rows committed in 4 chunks (1 failed, 0 retries), 0 bytes sent in 1.5s.\n", out.String())
}
