// Package casconfig opens a combination of registered CAS backends from a
// JSON description. Backends still have to be linked into the binary with a
// blank import of their package.
package casconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"xdao.co/signet/digest"
	"xdao.co/signet/storage"
	"xdao.co/signet/storage/casregistry"
)

// WritePolicy selects how a multi-backend configuration stores new objects.
type WritePolicy string

const (
	// WriteFirst stores on the first backend only; reads fall back in order.
	WriteFirst WritePolicy = "first"
	// WriteAll stores on every backend and requires every CID to agree.
	WriteAll WritePolicy = "all"
)

// Config is the storage section of a signet configuration file:
//
//	{
//	  "provider": "sha512",
//	  "write_policy": "all",
//	  "backends": [
//	    {"name": "localfs", "config": {"localfs-dir": "/var/lib/signet/cas"}},
//	    {"name": "grpc", "config": {"grpc-target": "127.0.0.1:7777"}}
//	  ]
//	}
//
// Backend config keys mirror the backend's flag names.
type Config struct {
	// Provider is used when the caller does not choose one.
	Provider    string          `json:"provider,omitempty"`
	WritePolicy WritePolicy     `json:"write_policy,omitempty"`
	Backfill    bool            `json:"backfill,omitempty"`
	Backends    []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name is the registered backend ("localfs", "grpc", "ipfs").
	Name string `json:"name"`
	// ID distinguishes two instances of the same backend; it defaults to Name.
	ID     string            `json:"id,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

// Label is the name the backend is reported under.
func (b BackendConfig) Label() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes and validates a JSON config.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("casconfig: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	labels := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("casconfig: backend %d has no name", i)
		}
		if labels[b.Label()] {
			return fmt.Errorf("casconfig: duplicate backend id %q", b.Label())
		}
		labels[b.Label()] = true
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
	if c.Provider != "" {
		if _, err := digest.ParseProvider(c.Provider); err != nil {
			return fmt.Errorf("casconfig: %w", err)
		}
	}
	return nil
}

// DigestProvider resolves the provider to open backends with: p when set,
// then the configured provider, then storage.DefaultProvider.
func (c Config) DigestProvider(p digest.Provider) (digest.Provider, error) {
	if p != 0 || c.Provider == "" {
		return storage.ProviderOrDefault(p), nil
	}
	return digest.ParseProvider(c.Provider)
}

// Open opens every backend and combines them per WritePolicy. A single
// backend is returned as is. When preferred names a backend (by Name or ID)
// it is moved to the front, which makes it the write target under WriteFirst.
func (c Config) Open(usage casregistry.Usage, preferred string, p digest.Provider) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	p, err := c.DigestProvider(p)
	if err != nil {
		return nil, nil, err
	}
	ordered, err := c.ordered(preferred)
	if err != nil {
		return nil, nil, err
	}

	var closers closerStack
	named := make([]storage.NamedCAS, 0, len(ordered))
	for _, b := range ordered {
		cas, closeFn, err := casregistry.OpenWithConfig(b.Name, usage, p, b.Config)
		if err != nil {
			_ = closers.Close()
			return nil, nil, fmt.Errorf("casconfig: open %q: %w", b.Label(), err)
		}
		closers.push(closeFn)
		named = append(named, storage.NamedCAS{Name: b.Label(), CAS: cas})
	}

	if len(named) == 1 {
		return named[0].CAS, closers.Close, nil
	}
	if c.WritePolicy == WriteAll {
		return storage.ReplicatingCAS{Backends: named, Provider: p}, closers.Close, nil
	}
	adapters := make([]storage.CAS, len(named))
	for i, n := range named {
		adapters[i] = n.CAS
	}
	return storage.MultiCAS{Adapters: adapters, Backfill: c.Backfill}, closers.Close, nil
}

func (c Config) ordered(preferred string) ([]BackendConfig, error) {
	out := make([]BackendConfig, 0, len(c.Backends))
	if preferred == "" {
		return append(out, c.Backends...), nil
	}
	for i, b := range c.Backends {
		if b.Name == preferred || b.ID == preferred {
			out = append(out, b)
			out = append(out, c.Backends[:i]...)
			return append(out, c.Backends[i+1:]...), nil
		}
	}
	return nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferred)
}

// closerStack closes in reverse order of opening and reports the first error.
type closerStack []func() error

func (s *closerStack) push(fn func() error) {
	if fn != nil {
		*s = append(*s, fn)
	}
}

func (s closerStack) Close() error {
	var first error
	for i := len(s) - 1; i >= 0; i-- {
		if err := s[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
