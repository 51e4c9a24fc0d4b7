// Package testutil provides shared fakes and helpers for edgesql tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/edgesql/pkg/edgesql"
)

// Logger returns a logger that writes to the test output.
func Logger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// Context returns a context cancelled when the test ends or after 30 seconds.
func Context(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Endpoint records every statement group it receives and answers each
// statement with an empty result. Like a real transport, a call whose
// context is done by the time it would answer fails with the context error.
type Endpoint struct {
	// Fail returns the error for the n-th call (1-based), nil to succeed.
	Fail func(call int, statements []string) error

	mu    sync.Mutex
	calls [][]string
}

func (e *Endpoint) Execute(ctx context.Context, statements []string) ([]edgesql.StatementResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, statements)
	n := len(e.calls)
	e.mu.Unlock()

	if e.Fail != nil {
		if err := e.Fail(n, statements); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return make([]edgesql.StatementResult, len(statements)), nil
}

// Calls returns the statement groups received so far.
func (e *Endpoint) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.calls...)
}

// Statements flattens every received group in order.
func (e *Endpoint) Statements() []string {
	var out []string
	for _, g := range e.Calls() {
		out = append(out, g...)
	}
	return out
}
