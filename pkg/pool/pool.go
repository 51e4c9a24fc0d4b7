// Package pool provides typed object pooling for hot rendering paths.
//
// Statement rendering builds one SQL literal per cell and one statement per
// row, so chunk rendering reuses its buffers instead of growing new ones:
//
//	buf := pool.Buffers.Get()
//	defer pool.Buffers.Put(buf)
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool is a type-safe wrapper around sync.Pool that tracks usage. It is
// safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) bool
	stats struct {
		allocated int64
		inUse     int64
		dropped   int64
	}
}

// New creates a pool. reset runs before an object goes back to the pool and
// reports whether it is still worth keeping; a nil reset keeps everything.
func New[T any](newFn func() T, reset func(T) bool) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object, allocating one when the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	atomic.AddInt64(&p.stats.inUse, -1)
	if p.reset != nil && !p.reset(obj) {
		atomic.AddInt64(&p.stats.dropped, 1)
		return
	}
	p.pool.Put(obj)
}

// Stats returns the number of objects allocated, currently checked out and
// dropped on Put.
func (p *Pool[T]) Stats() (allocated, inUse, dropped int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.dropped)
}

// MaxBufferSize bounds the buffers kept by Buffers. A chunk rendered close
// to the payload limit would otherwise pin megabytes per idle buffer.
const MaxBufferSize = 1 << 20

// Buffers pools byte buffers for statement rendering.
var Buffers = New(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	func(b *bytes.Buffer) bool {
		if b.Cap() > MaxBufferSize {
			return false
		}
		b.Reset()
		return true
	},
)
