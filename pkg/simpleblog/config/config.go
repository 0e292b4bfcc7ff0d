// Package config builds storage providers from declarative configuration.
// Provider implementations are resolved through an explicit registry keyed
// by a stable name, populated at startup; there is no runtime discovery.
package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tendant/simple-blog/pkg/simpleblog"
	"github.com/tendant/simple-blog/pkg/simpleblog/store/fs"
	"github.com/tendant/simple-blog/pkg/simpleblog/store/memory"
	"github.com/tendant/simple-blog/pkg/simpleblog/store/sqlite"
)

// Builder constructs a storage provider from a parsed connection string.
type Builder func(cs *simpleblog.ConnectionString) (simpleblog.StorageProvider, error)

// Registry maps stable provider names to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds or replaces the builder stored under name.
func (r *Registry) Register(name string, build Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = build
}

// Resolve returns the builder registered under name, or an error wrapping
// ErrUnknownProvider.
func (r *Registry) Resolve(name string) (Builder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	build, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", simpleblog.ErrUnknownProvider, name)
	}
	return build, nil
}

// DefaultRegistry returns a registry with the built-in backends: "memory",
// "fs" and "sqlite".
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("memory", func(cs *simpleblog.ConnectionString) (simpleblog.StorageProvider, error) {
		return memory.New(), nil
	})
	r.Register("fs", func(cs *simpleblog.ConnectionString) (simpleblog.StorageProvider, error) {
		return fs.New(cs)
	})
	r.Register("sqlite", func(cs *simpleblog.ConnectionString) (simpleblog.StorageProvider, error) {
		return sqlite.New(cs)
	})
	return r
}

// StoreConfig describes one content store: which backend to use, how to
// reach it and how long issued session tokens live in the session store.
type StoreConfig struct {
	Provider   string
	Connection string
	SessionTTL time.Duration
}

// Option applies configuration to a StoreConfig instance.
type Option func(*StoreConfig) error

// Load constructs a StoreConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*StoreConfig, error) {
	cfg := defaults()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() StoreConfig {
	return StoreConfig{
		Provider:   "memory",
		SessionTTL: 30 * time.Minute,
	}
}

// WithProvider selects the backend and its connection string.
func WithProvider(name, connection string) Option {
	return func(c *StoreConfig) error {
		c.Provider = name
		c.Connection = connection
		return nil
	}
}

// WithSessionTTL overrides the session-store entry lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *StoreConfig) error {
		c.SessionTTL = ttl
		return nil
	}
}

// Validate checks the configuration for internal consistency.
func (c *StoreConfig) Validate() error {
	if c.Provider == "" {
		return errors.New("provider is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	return nil
}

// BuildProvider resolves and constructs the configured backend. A nil
// registry uses the built-in one. The provider is returned uninitialised;
// the caller owns the Initialise call.
func (c *StoreConfig) BuildProvider(reg *Registry) (simpleblog.StorageProvider, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	build, err := reg.Resolve(c.Provider)
	if err != nil {
		return nil, err
	}
	cs, err := simpleblog.ParseConnectionString(c.Connection)
	if err != nil {
		return nil, err
	}
	return build(cs)
}
