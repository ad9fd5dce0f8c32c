package storage_test

import (
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/digest"
	"xdao.co/signet/storage"
	"xdao.co/signet/storage/localfs"
	"xdao.co/signet/storage/testkit"
)

func newLocal(t *testing.T, p digest.Provider) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir(), p)
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	return cas
}

func TestContentIDAndCheckContent(t *testing.T) {
	id, err := storage.ContentID(0, []byte("Test"))
	if err != nil {
		t.Fatalf("ContentID: %v", err)
	}
	d, err := digest.FromCID(id)
	if err != nil {
		t.Fatalf("FromCID: %v", err)
	}
	if d.Provider() != storage.DefaultProvider {
		t.Fatalf("provider: got %s", d.Provider())
	}
	if d.Base64(false, true) != "Uy6qvZV0iA2/drm4zACDLCCm7BE9aCKZVQ16bg80XiU=" {
		t.Fatalf("unexpected digest %s", d.Base64(false, true))
	}
	if err := storage.CheckContent(id, []byte("Test")); err != nil {
		t.Fatalf("CheckContent: %v", err)
	}
	if err := storage.CheckContent(id, []byte("Tesu")); err != storage.ErrCIDMismatch {
		t.Fatalf("got %v want %v", err, storage.ErrCIDMismatch)
	}
	if err := storage.CheckContent(cid.Undef, nil); err != storage.ErrInvalidCID {
		t.Fatalf("got %v want %v", err, storage.ErrInvalidCID)
	}

	empty, err := storage.ContentID(digest.SHA256, nil)
	if err != nil {
		t.Fatalf("ContentID(nil): %v", err)
	}
	if err := storage.CheckContent(empty, nil); err != nil {
		t.Fatalf("CheckContent(nil): %v", err)
	}
}

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, digest.SHA256, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{newLocal(t, digest.SHA256), newLocal(t, digest.SHA256)}}
	})
}

func TestMultiCAS_FallbackAndBackfill(t *testing.T) {
	first := newLocal(t, digest.SHA256)
	second := newLocal(t, digest.SHA256)
	id, err := second.Put([]byte("only in second"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	plain := storage.MultiCAS{Adapters: []storage.CAS{first, second}}
	if _, err := plain.Get(id); err != nil {
		t.Fatalf("fallback Get: %v", err)
	}
	if first.Has(id) {
		t.Fatalf("Get without Backfill must not write the first adapter")
	}

	cached := storage.MultiCAS{Adapters: []storage.CAS{first, second}, Backfill: true}
	if _, err := cached.Get(id); err != nil {
		t.Fatalf("backfill Get: %v", err)
	}
	if !first.Has(id) {
		t.Fatalf("expected object copied into the first adapter")
	}

	if _, err := (storage.MultiCAS{}).Put([]byte("x")); err != storage.ErrNoBackends {
		t.Fatalf("expected error without adapters")
	}
}

func TestReplicatingCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, digest.SHA512, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{
			Provider: digest.SHA512,
			Backends: []storage.NamedCAS{
				{Name: "a", CAS: newLocal(t, digest.SHA512)},
				{Name: "b", CAS: newLocal(t, digest.SHA512)},
			},
		}
	})
}

func TestReplicatingCAS_ProviderMismatch(t *testing.T) {
	r := storage.ReplicatingCAS{
		Provider: digest.SHA256,
		Backends: []storage.NamedCAS{
			{Name: "a", CAS: newLocal(t, digest.SHA256)},
			{Name: "b", CAS: newLocal(t, digest.SHA384)},
		},
	}
	_, got, err := r.PutAll([]byte("payload"))
	if err != storage.ErrCIDMismatch {
		t.Fatalf("got %v want %v", err, storage.ErrCIDMismatch)
	}
	if len(got) != 2 || got["a"] == got["b"] {
		t.Fatalf("expected both backend CIDs reported, got %v", got)
	}
}

// rotten answers every Get with bytes that no longer match the CID.
type rotten struct{ storage.CAS }

func (r rotten) Get(id cid.Cid) ([]byte, error) {
	if _, err := r.CAS.Get(id); err != nil {
		return nil, err
	}
	return []byte("bit rot"), nil
}

func TestReplicatingCAS_SkipsDamagedReplicaAndRepairs(t *testing.T) {
	a := newLocal(t, digest.SHA256)
	b := newLocal(t, digest.SHA256)
	c := newLocal(t, digest.SHA256)
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "a", CAS: rotten{a}},
		{Name: "b", CAS: b},
		{Name: "c", CAS: c},
	}}

	id, err := b.Put([]byte("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := a.Put([]byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := r.Get(id)
	if err != nil || string(got) != "payload" {
		t.Fatalf("Get: %q %v", got, err)
	}

	repaired, err := r.Repair(id)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if len(repaired) != 1 || repaired[0] != "c" || !c.Has(id) {
		t.Fatalf("Repair: got %v", repaired)
	}

	onlyRotten := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "a", CAS: rotten{a}}}}
	if _, err := onlyRotten.Get(id); !storage.IsMismatch(err) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := (storage.ReplicatingCAS{}).Put([]byte("x")); err != storage.ErrNoBackends {
		t.Fatalf("got %v want %v", err, storage.ErrNoBackends)
	}
}

func TestList(t *testing.T) {
	first := newLocal(t, digest.SHA256)
	second := newLocal(t, digest.SHA512)
	var want []cid.Cid
	for _, s := range []string{"one", "two"} {
		id, err := first.Put([]byte(s))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		want = append(want, id)
	}
	id, err := second.Put([]byte("three"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want = append(want, id)
	// stored twice, listed once
	if _, err := second.Put([]byte("three")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := storage.List(storage.MultiCAS{Adapters: []storage.CAS{first, second}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("List: got %v want %v", got, want)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].String() >= got[i].String() {
			t.Fatalf("List not sorted: %v", got)
		}
	}

	if _, err := storage.List(rotten{first}); err != storage.ErrNotListable {
		t.Fatalf("got %v want %v", err, storage.ErrNotListable)
	}
}
