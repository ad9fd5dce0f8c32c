// Package testkit holds the conformance suite every storage.CAS backend runs.
package testkit

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/digest"
	"xdao.co/signet/storage"
)

// NewCAS returns an empty store, isolated from other tests, that names
// objects with the provider given to RunCASConformance.
type NewCAS func(t *testing.T) storage.CAS

type check struct {
	name string
	run  func(t *testing.T, p digest.Provider, cas storage.CAS)
}

var checks = []check{
	{"PutGetRoundTrip", roundTrip},
	{"CIDRecordsProvider", recordsProvider},
	{"PutIdempotent", idempotent},
	{"EmptyObject", emptyObject},
	{"HasAndNotFound", hasAndNotFound},
	{"RejectUndefCID", rejectUndef},
	{"ConcurrentPuts", concurrentPuts},
	{"ListIncludesStored", listIncludesStored},
}

// RunCASConformance runs every check against a fresh store from newCAS.
func RunCASConformance(t *testing.T, p digest.Provider, newCAS NewCAS) {
	t.Helper()
	p = storage.ProviderOrDefault(p)
	for _, c := range checks {
		c := c
		t.Run(c.name, func(t *testing.T) { c.run(t, p, newCAS(t)) })
	}
}

func mustPut(t *testing.T, cas storage.CAS, b []byte) cid.Cid {
	t.Helper()
	id, err := cas.Put(b)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	return id
}

func roundTrip(t *testing.T, p digest.Provider, cas storage.CAS) {
	want := []byte("hello, signet storage")
	id := mustPut(t, cas, want)
	wantID, err := storage.ContentID(p, want)
	if err != nil {
		t.Fatalf("ContentID failed: %v", err)
	}
	if id != wantID {
		t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
	}
	got, err := cas.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Get bytes mismatch")
	}
}

func recordsProvider(t *testing.T, p digest.Provider, cas storage.CAS) {
	d, err := digest.FromCID(mustPut(t, cas, []byte("provider")))
	if err != nil {
		t.Fatalf("FromCID failed: %v", err)
	}
	if d.Provider() != p {
		t.Fatalf("CID provider: got %s want %s", d.Provider(), p)
	}
}

func idempotent(t *testing.T, _ digest.Provider, cas storage.CAS) {
	b := []byte("same bytes")
	if id1, id2 := mustPut(t, cas, b), mustPut(t, cas, b); id1 != id2 {
		t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
	}
}

func emptyObject(t *testing.T, _ digest.Provider, cas storage.CAS) {
	got, err := cas.Get(mustPut(t, cas, []byte{}))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty object, got %d bytes", len(got))
	}
}

func hasAndNotFound(t *testing.T, p digest.Provider, cas storage.CAS) {
	b := []byte("missing")
	id, err := storage.ContentID(p, b)
	if err != nil {
		t.Fatalf("ContentID failed: %v", err)
	}
	if cas.Has(id) {
		t.Fatalf("Has returned true for missing CID")
	}
	if _, err := cas.Get(id); !storage.IsNotFound(err) {
		t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
	}
	mustPut(t, cas, b)
	if !cas.Has(id) {
		t.Fatalf("Has returned false after Put")
	}
}

func rejectUndef(t *testing.T, _ digest.Provider, cas storage.CAS) {
	if cas.Has(cid.Undef) {
		t.Fatalf("Has should be false for undefined CID")
	}
	if _, err := cas.Get(cid.Undef); err == nil {
		t.Fatalf("Get should fail for undefined CID")
	}
}

// concurrentPuts stores the same and distinct objects from several
// goroutines; every writer of one object must get the same CID.
func concurrentPuts(t *testing.T, _ digest.Provider, cas storage.CAS) {
	const writers = 8
	ids := make([]cid.Cid, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := cas.Put([]byte(fmt.Sprintf("writer %d", i))); err != nil {
				errs[i] = err
				return
			}
			ids[i], errs[i] = cas.Put([]byte("shared"))
		}(i)
	}
	wg.Wait()
	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("writer %d got %s, writer 0 got %s", i, ids[i], ids[0])
		}
	}
}

// listIncludesStored applies only to stores that implement storage.Lister.
func listIncludesStored(t *testing.T, _ digest.Provider, cas storage.CAS) {
	if _, ok := cas.(storage.Lister); !ok {
		t.Skip("store does not list")
	}
	want := map[cid.Cid]bool{
		mustPut(t, cas, []byte("listed one")): true,
		mustPut(t, cas, []byte("listed two")): true,
	}
	ids, err := storage.List(cas)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, id := range ids {
		delete(want, id)
	}
	if len(want) != 0 {
		t.Fatalf("List missing %v", want)
	}
}
