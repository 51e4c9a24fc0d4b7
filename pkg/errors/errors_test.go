package errors

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(io.EOF, ErrorTypeSourceUnavailable, "open failed")
	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, io.EOF))
	assert.Equal(t, ErrorTypeSourceUnavailable, GetType(err))
	assert.NotEmpty(t, err.Stack)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "nothing"))
}

func TestDetailSearchesChain(t *testing.T) {
	inner := New(ErrorTypeVectorDimension, "bad length").WithDetail("actual_dim", 127)
	outer := Wrap(inner, ErrorTypeChunkExecution, "chunk failed").WithDetail("chunk", 5)

	v, ok := outer.Detail("actual_dim")
	require.True(t, ok)
	assert.Equal(t, 127, v)

	v, ok = outer.Detail("chunk")
	require.True(t, ok)
	assert.Equal(t, 5, v)

	_, ok = outer.Detail("missing")
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", New(ErrorTypeTransportTimeout, "x"), true},
		{"connection", New(ErrorTypeConnection, "x"), true},
		{"rate limit", New(ErrorTypeRateLimit, "x"), true},
		{"query", New(ErrorTypeQuery, "x"), false},
		{"plain", io.EOF, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
