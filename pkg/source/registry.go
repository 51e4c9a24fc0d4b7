package source

import (
	"sort"
	"sync"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
)

// Factory builds a Reader for a spec.
type Factory func(spec Spec, cfg *config.Config) (Reader, error)

var (
	mu        sync.RWMutex
	factories = make(map[Kind]Factory)
)

// Register adds a factory for kind. Registering a kind twice panics, since
// it can only happen through conflicting init functions.
func Register(kind Kind, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[kind]; exists {
		panic("source: kind " + string(kind) + " registered twice")
	}
	factories[kind] = factory
}

// New creates a Reader for spec using the registered factory.
func New(spec Spec, cfg *config.Config) (Reader, error) {
	mu.RLock()
	factory, exists := factories[spec.Kind]
	mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "source kind %q not registered", spec.Kind).
			WithDetail("kinds", Kinds())
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	r, err := factory(spec, cfg)
	if err != nil {
		if errors.GetType(err) != "" {
			return nil, err
		}
		return nil, Unavailable(err, spec, "failed to create source reader")
	}
	return r, nil
}

// Kinds lists registered kinds in order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
