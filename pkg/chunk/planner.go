// Package chunk sizes import batches so each request stays under the
// endpoint's payload limit.
//
// The first chunk uses a configured default. After every executed chunk the
// planner records the bytes actually sent and sizes the next chunk as
// floor(MaxPayloadBytes*SafetyFactor / averageRowBytes), clamped to
// [MinRows, MaxRows]. A chunk already in flight is never resized.
package chunk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ajitpratap0/edgesql/pkg/config"
)

// Policy bounds chunk sizing.
type Policy struct {
	MaxPayloadBytes int
	DefaultRows     int
	MinRows         int
	MaxRows         int
	// SafetyFactor scales MaxPayloadBytes to leave headroom for framing
	SafetyFactor float64
}

// PolicyFromConfig builds an import policy from the import section.
func PolicyFromConfig(ic config.ImportConfig) Policy {
	return Policy{
		MaxPayloadBytes: ic.MaxPayloadBytes,
		DefaultRows:     ic.DefaultChunkRows,
		MinRows:         ic.MinChunkRows,
		MaxRows:         ic.MaxChunkRows,
		SafetyFactor:    1.0,
	}
}

// ScriptPolicy is the sizing used for SQL script execution: 85% of the
// payload limit and at most 512 statements per request.
func ScriptPolicy(maxPayloadBytes int) Policy {
	return Policy{
		MaxPayloadBytes: maxPayloadBytes,
		DefaultRows:     1,
		MinRows:         1,
		MaxRows:         512,
		SafetyFactor:    0.85,
	}
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.MaxPayloadBytes <= 0 {
		return fmt.Errorf("max payload must be positive, got %d", p.MaxPayloadBytes)
	}
	if p.MinRows < 1 || p.MaxRows < p.MinRows {
		return fmt.Errorf("invalid row bounds [%d, %d]", p.MinRows, p.MaxRows)
	}
	return nil
}

func (p Policy) clamp(n int) int {
	if n < p.MinRows {
		return p.MinRows
	}
	if n > p.MaxRows {
		return p.MaxRows
	}
	return n
}

// State is the planner's measurement history for one run.
type State struct {
	Chunks      int
	RowsSent    int64
	BytesSent   int64
	LastLatency time.Duration
}

// AvgRowBytes is the mean serialized row size so far, or 0 before any chunk.
func (s State) AvgRowBytes() float64 {
	if s.RowsSent == 0 {
		return 0
	}
	return float64(s.BytesSent) / float64(s.RowsSent)
}

// Planner computes chunk sizes from a Policy and observed State.
type Planner struct {
	policy Policy

	mu    sync.Mutex
	state State
}

// NewPlanner creates a planner for one import run.
func NewPlanner(policy Policy) (*Planner, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.SafetyFactor <= 0 || policy.SafetyFactor > 1 {
		policy.SafetyFactor = 1
	}
	if policy.DefaultRows < 1 {
		policy.DefaultRows = policy.MinRows
	}
	return &Planner{policy: policy}, nil
}

// Policy returns the planner's policy.
func (p *Planner) Policy() Policy {
	return p.policy
}

// NextChunkSize returns the row count for the next chunk given state.
// It is a pure function of the policy and state.
func (p *Planner) NextChunkSize(state State) int {
	avg := state.AvgRowBytes()
	if avg <= 0 {
		return p.policy.clamp(p.policy.DefaultRows)
	}
	budget := float64(p.policy.MaxPayloadBytes) * p.policy.SafetyFactor
	n := math.Floor(budget / avg)
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return p.policy.clamp(int(n))
}

// Next is NextChunkSize over the planner's own state.
func (p *Planner) Next() int {
	return p.NextChunkSize(p.State())
}

// Observe records an executed chunk.
func (p *Planner) Observe(rows, bytes int, latency time.Duration) {
	if rows <= 0 {
		return
	}
	p.mu.Lock()
	p.state.Chunks++
	p.state.RowsSent += int64(rows)
	p.state.BytesSent += int64(bytes)
	p.state.LastLatency = latency
	p.mu.Unlock()
}

// State returns a copy of the current state.
func (p *Planner) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
