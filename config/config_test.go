package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/signet/digest"
)

func TestParseFull(t *testing.T) {
	body := `{
	  "provider": "SHA3-256",
	  "log": {"level": "debug", "format": "json"},
	  "identity": {"dir": "/tmp/ids", "name": "release", "password_env": "SIGNET_TEST_PW"},
	  "storage": {"backends": [{"name": "localfs", "config": {"localfs-dir": "/tmp/cas"}}]}
	}`
	cfg, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := cfg.DigestProvider()
	if err != nil || p != digest.SHA3_256 {
		t.Fatalf("DigestProvider: %v %v", p, err)
	}
	if cfg.Storage == nil || cfg.Storage.Backends[0].Config["localfs-dir"] != "/tmp/cas" {
		t.Fatalf("storage not decoded: %+v", cfg.Storage)
	}

	t.Setenv("SIGNET_TEST_PW", "secret")
	if cfg.Password() != "secret" {
		t.Fatalf("Password: got %q", cfg.Password())
	}
	s, err := cfg.Store()
	if err != nil || s.Directory != "/tmp/ids" {
		t.Fatalf("Store: %v %v", s, err)
	}

	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected json debug entry, got %q", buf.String())
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p, _ := cfg.DigestProvider(); p != digest.SHA256 {
		t.Fatalf("default provider: %s", p)
	}
	if cfg.Password() != "" {
		t.Fatalf("expected no password")
	}
}

func TestStorageProviderFallback(t *testing.T) {
	cfg, err := Parse([]byte(`{"storage":{"provider":"sha512","backends":[{"name":"localfs"}]}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p, _ := cfg.DigestProvider(); p != digest.SHA512 {
		t.Fatalf("storage provider: %s", p)
	}
	cfg.Provider = "sha384"
	if p, _ := cfg.DigestProvider(); p != digest.SHA384 {
		t.Fatalf("top-level provider must win: %s", p)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]string{
		"provider":      `{"provider":"MD5"}`,
		"level":         `{"log":{"level":"loud"}}`,
		"format":        `{"log":{"format":"xml"}}`,
		"identity name": `{"identity":{"name":"a/b"}}`,
		"storage":       `{"storage":{"backends":[]}}`,
		"unknown field": `{"providr":"SHA-256"}`,
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signet.json")
	if err := os.WriteFile(path, []byte(`{"provider":"SHA-384"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if p, _ := cfg.DigestProvider(); p != digest.SHA384 {
		t.Fatalf("provider: %s", p)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
