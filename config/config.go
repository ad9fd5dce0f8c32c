// Package config is the JSON configuration shared by signet and signet-casd.
//
// Every field is optional; command-line flags override the file. Example:
//
//	{
//	  "provider": "SHA-512",
//	  "log": {"level": "debug", "format": "json"},
//	  "identity": {"dir": "/etc/signet/identities", "name": "release"},
//	  "storage": {
//	    "write_policy": "first",
//	    "backends": [{"name": "localfs", "config": {"localfs-dir": "/var/lib/signet"}}]
//	  }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"xdao.co/signet/certstore"
	"xdao.co/signet/digest"
	"xdao.co/signet/internal/log"
	"xdao.co/signet/storage"
	"xdao.co/signet/storage/casconfig"
)

type Config struct {
	Provider string            `json:"provider,omitempty"`
	Log      Log               `json:"log,omitempty"`
	Identity Identity          `json:"identity,omitempty"`
	Storage  *casconfig.Config `json:"storage,omitempty"`
}

type Log struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// Identity selects the signing identity from a certstore directory.
type Identity struct {
	Dir  string `json:"dir,omitempty"`
	Name string `json:"name,omitempty"`
	// PasswordEnv names the environment variable holding the identity password.
	PasswordEnv string `json:"password_env,omitempty"`
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("config: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(b)
}

// Parse decodes and validates a JSON config. Unknown fields are rejected.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Provider != "" {
		if _, err := digest.ParseProvider(c.Provider); err != nil {
			return fmt.Errorf("config: provider: %w", err)
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !log.ValidFormat(c.Log.Format) {
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if c.Identity.Name != "" {
		if err := certstore.CheckName(c.Identity.Name); err != nil {
			return fmt.Errorf("config: identity name: %w", err)
		}
	}
	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DigestProvider returns the configured provider, then the storage section's,
// then storage.DefaultProvider.
func (c Config) DigestProvider() (digest.Provider, error) {
	if c.Provider != "" {
		return digest.ParseProvider(c.Provider)
	}
	if c.Storage != nil {
		return c.Storage.DigestProvider(0)
	}
	return storage.DefaultProvider, nil
}

// NewLogger builds the configured logger writing to w.
func (c Config) NewLogger(w io.Writer) (log.Logger, error) {
	return log.New(w, c.Log.Format, c.Log.Level)
}

// Password returns the identity password from the configured environment
// variable, or "" when none is configured.
func (c Config) Password() string {
	if c.Identity.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Identity.PasswordEnv)
}

// Store opens the configured identity store.
func (c Config) Store() (*certstore.Store, error) {
	return certstore.Open(c.Identity.Dir)
}
