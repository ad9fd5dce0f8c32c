package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, FormatLogfmt, "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hidden")
	l.Info("shown", "k", "v")
	l.With("component", "test").Error("failed", "err", "boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry leaked: %s", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "k=v") {
		t.Fatalf("info entry missing: %s", out)
	}
	if !strings.Contains(out, "component=test") || !strings.Contains(out, "level=error") {
		t.Fatalf("error entry missing: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, FormatJSON, "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hello", "n", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["level"] != "debug" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("missing timestamp: %v", entry)
	}
}

func TestRejectsUnknownSettings(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := New(&bytes.Buffer{}, "", "loud"); err == nil {
		t.Fatalf("expected level error")
	}
	if !ValidFormat("term") || ValidFormat("xml") {
		t.Fatalf("ValidFormat mismatch")
	}
	NewNopLogger().Info("discarded")
}
