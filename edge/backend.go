package edge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"
)

// NativeBackend is the name of the pure-Go engine, always registered.
const NativeBackend = "native"

// Backend is an edge detection implementation selectable by name.
type Backend interface {
	Name() string
	Detect(ctx context.Context, luma frame.LumaPlane, dst *frame.EdgeMap) error
	DetectWithThresholds(ctx context.Context, luma frame.LumaPlane, dst *frame.EdgeMap, th Thresholds) error
}

// Factory creates a Backend for one session.
type Factory func(cfg Config) (Backend, error)

var (
	registryMu sync.RWMutex
	factories  = map[string]Factory{}
)

// Register makes a backend available to NewBackend. It is called from init
// functions; registering an existing name replaces it.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend creates the named backend. An empty name selects the native
// engine.
func NewBackend(name string, cfg Config) (Backend, error) {
	if name == "" {
		name = NativeBackend
	}

	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("edge: backend %q not registered (available: %v): %w", name, Available(), ErrInvalidConfig)
	}
	return f(cfg)
}

func init() {
	Register(NativeBackend, func(cfg Config) (Backend, error) {
		return NewDetector(cfg)
	})
}
