package main

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/signet/internal/testcert"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFile(t *testing.T, dir, name string, b []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// importAlice stores a signing identity named alice in storeDir and returns the
// path of its PEM certificate.
func importAlice(t *testing.T, dir, storeDir string) string {
	t.Helper()
	pair := testcert.SelfSigned(t, "alice", x509.SHA256WithRSA)
	keyDER, err := x509.MarshalPKCS8PrivateKey(pair.Key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	certPath := writeFile(t, dir, "alice.crt", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: pair.Cert.Raw}))
	keyPath := writeFile(t, dir, "alice.key", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}))

	code, out, errOut := runCLI(t, "identity", "import", "--store", storeDir, "--name", "alice", "--cert", certPath, "--key", keyPath)
	if code != 0 {
		t.Fatalf("identity import: exit %d: %s", code, errOut)
	}
	if strings.TrimSpace(out) != pair.Cert.SerialNumber.Text(16) {
		t.Fatalf("import printed %q", out)
	}
	return certPath
}

func TestUsageAndUnknownCommand(t *testing.T) {
	if code, _, _ := runCLI(t); code != 2 {
		t.Fatalf("no args: exit %d", code)
	}
	if code, _, _ := runCLI(t, "frobnicate"); code != 2 {
		t.Fatalf("unknown: exit %d", code)
	}
	code, out, _ := runCLI(t, "help")
	if code != 0 || !strings.Contains(out, "signet digest") {
		t.Fatalf("help: exit %d %q", code, out)
	}
}

func TestDigestFormats(t *testing.T) {
	path := writeFile(t, t.TempDir(), "test.txt", []byte("Test"))

	cases := []struct {
		args []string
		want string
	}{
		{[]string{"digest", path}, "Uy6qvZV0iA2/drm4zACDLCCm7BE9aCKZVQ16bg80XiU="},
		{[]string{"digest", "--format", "hex", path}, "532eaabd9574880dbf76b9b8cc00832c20a6ec113d682299550d7a6e0f345e25"},
		{[]string{"digest", "--format", "oci", path}, "sha256:532eaabd9574880dbf76b9b8cc00832c20a6ec113d682299550d7a6e0f345e25"},
		{[]string{"digest", "--provider", "SHA-384", path}, "e49GVAdrgOuWORHxnPrRqvQoXtSOgm9s3hsBp5qnP621RG5mf8T5BBd4LJEnBUDz"},
	}
	for _, tc := range cases {
		code, out, errOut := runCLI(t, tc.args...)
		if code != 0 {
			t.Fatalf("%v: exit %d: %s", tc.args, code, errOut)
		}
		if strings.TrimSpace(out) != tc.want {
			t.Fatalf("%v: got %q want %q", tc.args, out, tc.want)
		}
	}

	if code, _, _ := runCLI(t, "digest", "--format", "bogus", path); code != 2 {
		t.Fatalf("bad format: exit %d", code)
	}
	if code, _, _ := runCLI(t, "digest", "--provider", "SHA3-256", "--format", "oci", path); code != 2 {
		t.Fatalf("sha3 has no oci form: exit %d", code)
	}
}

func TestSignVerify(t *testing.T) {
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "ids")
	certPath := importAlice(t, dir, storeDir)
	data := writeFile(t, dir, "data.bin", []byte("release artifact"))

	code, out, errOut := runCLI(t, "sign", "--store", storeDir, "--identity", "alice", "--provider", "SHA-512", data)
	if code != 0 {
		t.Fatalf("sign: exit %d: %s", code, errOut)
	}
	sig := writeFile(t, dir, "data.sig.json", []byte(out))

	if code, out, errOut = runCLI(t, "verify", "--digest", sig, "--cert", certPath, data); code != 0 {
		t.Fatalf("verify --cert: exit %d: %s %s", code, out, errOut)
	}
	if strings.TrimSpace(out) != "OK (signed)" {
		t.Fatalf("verify printed %q", out)
	}
	if code, _, errOut = runCLI(t, "verify", "--store", storeDir, "--digest", sig, "--identity", "alice", data); code != 0 {
		t.Fatalf("verify --identity: exit %d: %s", code, errOut)
	}

	tampered := writeFile(t, dir, "tampered.bin", []byte("release artifacT"))
	code, out, _ = runCLI(t, "verify", "--digest", sig, "--cert", certPath, tampered)
	if code != 1 || !strings.Contains(out, "computed digest does not match") {
		t.Fatalf("tampered: exit %d %q", code, out)
	}
	code, out, _ = runCLI(t, "verify", "--digest", sig, data)
	if code != 1 || !strings.Contains(out, "signed but no signer provided") {
		t.Fatalf("no signer: exit %d %q", code, out)
	}
}

func TestIdentityLifecycle(t *testing.T) {
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "ids")
	certPath := importAlice(t, dir, storeDir)

	code, out, errOut := runCLI(t, "identity", "list", "--store", storeDir)
	if code != 0 || !strings.HasPrefix(out, "alice\t") || !strings.Contains(out, "private-key") {
		t.Fatalf("list: exit %d %q %s", code, out, errOut)
	}

	code, out, errOut = runCLI(t, "identity", "export", "--store", storeDir, "--name", "alice", "--public")
	if code != 0 || !strings.Contains(out, `"has_private_key": false`) {
		t.Fatalf("export: exit %d %q %s", code, out, errOut)
	}

	t.Setenv("SIGNET_TEST_PASSWORD", "pw")
	code, out, errOut = runCLI(t, "identity", "export", "--store", storeDir, "--name", "alice", "--encrypt", "--password-env", "SIGNET_TEST_PASSWORD")
	if code != 0 || !strings.Contains(out, `"encrypted": true`) {
		t.Fatalf("encrypted export: exit %d %q %s", code, out, errOut)
	}
	if code, _, _ = runCLI(t, "identity", "export", "--store", storeDir, "--name", "alice", "--encrypt"); code != 1 {
		t.Fatalf("encrypted export without password: exit %d", code)
	}

	code, out, _ = runCLI(t, "identity", "verify-chain", "--store", storeDir, "--name", "alice", "--ca", certPath)
	if code != 0 || strings.TrimSpace(out) != "OK" {
		t.Fatalf("verify-chain: exit %d %q", code, out)
	}

	if code, _, errOut = runCLI(t, "identity", "remove", "--store", storeDir, "--name", "alice"); code != 0 {
		t.Fatalf("remove: exit %d: %s", code, errOut)
	}
	if code, _, _ = runCLI(t, "identity", "remove", "--store", storeDir, "--name", "alice"); code != 1 {
		t.Fatalf("second remove: exit %d", code)
	}
}

func TestStoreCommands(t *testing.T) {
	dir := t.TempDir()
	casDir := filepath.Join(dir, "cas")
	storeDir := filepath.Join(dir, "ids")
	importAlice(t, dir, storeDir)
	data := writeFile(t, dir, "doc.txt", []byte("stored document"))
	backend := []string{"--backend", "localfs", "--localfs-dir", casDir}

	code, out, errOut := runCLI(t, append(append([]string{"store", "put"}, backend...), data)...)
	if code != 0 {
		t.Fatalf("put: exit %d: %s", code, errOut)
	}
	id := strings.TrimSpace(out)

	if code, out, _ = runCLI(t, append(append([]string{"store", "has"}, backend...), id)...); code != 0 || strings.TrimSpace(out) != "true" {
		t.Fatalf("has: exit %d %q", code, out)
	}
	if code, out, _ = runCLI(t, append(append([]string{"store", "get"}, backend...), id)...); code != 0 || out != "stored document" {
		t.Fatalf("get: exit %d %q", code, out)
	}

	sealArgs := append([]string{"store", "seal", "--store", storeDir, "--identity", "alice"}, backend...)
	code, out, errOut = runCLI(t, append(sealArgs, data)...)
	if code != 0 {
		t.Fatalf("seal: exit %d: %s", code, errOut)
	}
	record := strings.TrimSpace(out)

	openArgs := append([]string{"store", "open", "--store", storeDir, "--identity", "alice"}, backend...)
	if code, out, errOut = runCLI(t, append(openArgs, record)...); code != 0 || out != "stored document" {
		t.Fatalf("open: exit %d %q %s", code, out, errOut)
	}
	if code, _, _ = runCLI(t, append(append([]string{"store", "open"}, backend...), record)...); code != 1 {
		t.Fatalf("open signed record without identity: exit %d", code)
	}

	bundlePath := filepath.Join(dir, "sealed.tar")
	if code, _, errOut = runCLI(t, append(append([]string{"store", "export", "--out", bundlePath}, backend...), record)...); code != 0 {
		t.Fatalf("export: exit %d: %s", code, errOut)
	}
	otherCAS := []string{"--backend", "localfs", "--localfs-dir", filepath.Join(dir, "other")}
	code, out, errOut = runCLI(t, append(append([]string{"store", "import"}, otherCAS...), bundlePath)...)
	if code != 0 || len(strings.Fields(out)) != 2 {
		t.Fatalf("import: exit %d %q %s", code, out, errOut)
	}
	if code, out, _ = runCLI(t, append(append([]string{"store", "open", "--store", storeDir, "--identity", "alice"}, otherCAS...), record)...); code != 0 || out != "stored document" {
		t.Fatalf("open imported: exit %d %q", code, out)
	}

	dryDir := filepath.Join(dir, "dry")
	code, out, errOut = runCLI(t, "store", "import", "--dry-run", "--backend", "localfs", "--localfs-dir", dryDir, bundlePath)
	if code != 0 || len(strings.Fields(out)) != 2 {
		t.Fatalf("dry run: exit %d %q %s", code, out, errOut)
	}
	if entries, _ := os.ReadDir(dryDir); len(entries) != 0 {
		t.Fatalf("dry run stored %d entries", len(entries))
	}

	allPath := filepath.Join(dir, "all.tar")
	if code, _, errOut = runCLI(t, append([]string{"store", "export", "--out", allPath, "--follow-seals=false"}, backend...)...); code != 0 {
		t.Fatalf("export all: exit %d: %s", code, errOut)
	}
	code, out, errOut = runCLI(t, "store", "import", "--backend", "localfs", "--localfs-dir", filepath.Join(dir, "third"), allPath)
	if code != 0 || len(strings.Fields(out)) != 2 {
		t.Fatalf("import all: exit %d %q %s", code, out, errOut)
	}

	if code, _, _ = runCLI(t, "store", "put", data); code != 2 {
		t.Fatalf("put without backend: exit %d", code)
	}

	cfgPath := writeFile(t, dir, "signet.json", []byte(`{"storage":{"backends":[{"name":"localfs","config":{"localfs-dir":"`+filepath.ToSlash(casDir)+`"}}]}}`))
	if code, out, _ = runCLI(t, "store", "get", "--config", cfgPath, id); code != 0 || out != "stored document" {
		t.Fatalf("get via config: exit %d %q", code, out)
	}
}
