package localfs

import (
	"os"
	"testing"

	"xdao.co/signet/digest"
	"xdao.co/signet/storage"
	"xdao.co/signet/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	for _, p := range []digest.Provider{digest.SHA256, digest.SHA512, digest.SHA3_256} {
		p := p
		t.Run(p.String(), func(t *testing.T) {
			testkit.RunCASConformance(t, p, func(t *testing.T) storage.CAS {
				t.Helper()
				cas, err := New(t.TempDir(), p)
				if err != nil {
					t.Fatalf("New failed: %v", err)
				}
				return cas
			})
		})
	}
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	cas, err := New(t.TempDir(), digest.SHA256)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := cas.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := cas.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err = cas.Get(id); err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}

	// Put must not "repair" or overwrite the corrupted object.
	if _, err = cas.Put(orig); err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}
}

func TestLocalFS_ReadsObjectsOfOtherProviders(t *testing.T) {
	dir := t.TempDir()
	writer, err := New(dir, digest.SHA512)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id, err := writer.Put([]byte("shared"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reader, err := New(dir, digest.SHA256)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := reader.Get(id)
	if err != nil || string(got) != "shared" {
		t.Fatalf("Get: %q %v", got, err)
	}
}

func TestLocalFS_RequiresRoot(t *testing.T) {
	if _, err := New("", digest.SHA256); err == nil {
		t.Fatalf("expected error for empty root")
	}
}
