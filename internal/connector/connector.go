// Package connector loads datasets from external sources. Each backend
// lives in its own package and registers itself under a kind; callers select
// a backend by kind the same way for every source.
package connector

import (
	"context"
	"fmt"
	"sync"

	"qc/internal/dataset"
)

// Config is the minimal configuration needed to open a connector.
//
// DSN carries the backend-specific locator: a connection string for the
// database backends, a file path for the file backend, a path or URL for the
// HTML backend.
type Config struct {
	Kind string
	DSN  string
}

// Connector is the backend-agnostic loading interface.
type Connector interface {
	// Query executes a backend-specific query and returns the result as a
	// typed dataset. File-backed connectors ignore the query string.
	Query(ctx context.Context, query string) (*dataset.Dataset, error)

	// Schema describes what the source can serve (tables, files, columns).
	Schema(ctx context.Context) (map[string]any, error)

	// Close releases backend resources. Treat as "call once".
	Close()
}

type factory func(ctx context.Context, cfg Config) (Connector, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "file").
// Called from init() in backend packages. Registering the same kind twice
// panics to fail fast on ambiguous selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("connector: Register called with empty kind")
	}
	if f == nil {
		panic("connector: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("connector: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Connector using the registered backend factory.
func New(ctx context.Context, cfg Config) (Connector, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("connector: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("connector: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

// TestResult reports whether a source is reachable.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Test opens the configured backend, probes its schema, and closes it.
func Test(ctx context.Context, cfg Config) TestResult {
	c, err := New(ctx, cfg)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	defer c.Close()

	if _, err := c.Schema(ctx); err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	return TestResult{Success: true, Message: "Connection successful"}
}
