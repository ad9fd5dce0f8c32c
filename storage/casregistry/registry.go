// Package casregistry lets storage backends register themselves at init time
// so binaries can pick one by name from flags or configuration.
//
// A backend package calls MustRegister from init; a binary enables it with a
// blank import.
package casregistry

import (
	"errors"
	"flag"
	"fmt"
	"sort"
	"sync"

	"xdao.co/signet/digest"
	"xdao.co/signet/storage"
)

var (
	ErrUnknownBackend = errors.New("casregistry: unknown backend")
	ErrUsage          = errors.New("casregistry: backend not available in this program")
)

// Options are the per-open settings handed to a backend.
type Options struct {
	// Provider is always a valid provider by the time Open sees it.
	Provider digest.Provider
	// Config holds backend-specific values keyed like the backend's flags
	// (e.g. "localfs-dir"). A key present here overrides the parsed flag.
	Config map[string]string
}

// Value returns Config[key] when set, otherwise fallback.
func (o Options) Value(key, fallback string) string {
	if v, ok := o.Config[key]; ok {
		return v
	}
	return fallback
}

type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// RegisterFlags adds the backend's flags to fs. Flag names are prefixed
	// with the backend name so every backend can share one FlagSet.
	RegisterFlags func(fs *flag.FlagSet)

	// Open builds the CAS from the parsed flags, overridden by opts.Config,
	// and returns an optional close function.
	Open func(opts Options) (storage.CAS, func() error, error)
}

func (b Backend) validate() error {
	switch {
	case b.Name == "":
		return errors.New("casregistry: backend name is required")
	case b.RegisterFlags == nil:
		return fmt.Errorf("casregistry: backend %q missing RegisterFlags", b.Name)
	case b.Open == nil:
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	case b.Usage == 0:
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}
	return nil
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func Register(b Backend) error {
	if err := b.validate(); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := backends[b.Name]; dup {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is Register for init functions.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := backends[name]
	return b, ok
}

// List returns the backends usable under usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Names(usage Usage) []string {
	var names []string
	for _, b := range List(usage) {
		names = append(names, b.Name)
	}
	return names
}

// RegisterFlags adds the flags of every backend usable under usage. The flag
// package rejects unknown flags, so all of them have to be known before the
// single Parse call.
func RegisterFlags(fs *flag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		b.RegisterFlags(fs)
	}
}

// Open opens the named backend from its flags.
func Open(name string, usage Usage, p digest.Provider) (storage.CAS, func() error, error) {
	return OpenWithOptions(name, usage, Options{Provider: p})
}

// OpenWithConfig opens the named backend with config values taking precedence
// over flags.
func OpenWithConfig(name string, usage Usage, p digest.Provider, config map[string]string) (storage.CAS, func() error, error) {
	return OpenWithOptions(name, usage, Options{Provider: p, Config: config})
}

func OpenWithOptions(name string, usage Usage, opts Options) (storage.CAS, func() error, error) {
	b, ok := Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, name, Names(usage))
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("%w: %q is %s only", ErrUsage, name, b.Usage)
	}
	opts.Provider = storage.ProviderOrDefault(opts.Provider)
	if !opts.Provider.Valid() {
		return nil, nil, fmt.Errorf("casregistry: unsupported digest provider %s", opts.Provider)
	}
	return b.Open(opts)
}
