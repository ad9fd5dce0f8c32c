package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/digest"
)

// NamedCAS is a backend plus the name it is reported under.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS keeps every object on every backend.
//
// Put succeeds only when each backend names the bytes with the CID computed
// locally under Provider. Get re-checks what each backend returns and skips
// replicas whose bytes no longer match, so one damaged copy does not hide a
// good one.
type ReplicatingCAS struct {
	Backends []NamedCAS
	// Provider is shared by all backends; zero means DefaultProvider.
	Provider digest.Provider
}

var _ CAS = ReplicatingCAS{}

// PutAll stores bytes on every backend and reports the CID each one answered
// with. On ErrCIDMismatch the map still holds every answer collected so far.
func (r ReplicatingCAS) PutAll(bytes []byte) (cid.Cid, map[string]cid.Cid, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, ErrNoBackends
	}
	want, err := ContentID(r.Provider, bytes)
	if err != nil {
		return cid.Undef, nil, err
	}

	answers := make(map[string]cid.Cid, len(r.Backends))
	mismatch := false
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, answers, fmt.Errorf("storage: backend %q has no CAS", b.Name)
		}
		got, err := b.CAS.Put(bytes)
		if err != nil {
			return cid.Undef, answers, fmt.Errorf("storage: put on %q: %w", b.Name, err)
		}
		answers[b.Name] = got
		mismatch = mismatch || got != want
	}
	if mismatch {
		return cid.Undef, answers, ErrCIDMismatch
	}
	return want, answers, nil
}

func (r ReplicatingCAS) Put(bytes []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(bytes)
	return id, err
}

// Get returns the first replica whose bytes match id. ErrCIDMismatch means
// copies were found but none of them matched.
func (r ReplicatingCAS) Get(id cid.Cid) ([]byte, error) {
	b, _, err := r.get(id)
	return b, err
}

func (r ReplicatingCAS) get(id cid.Cid) ([]byte, string, error) {
	if !id.Defined() {
		return nil, "", ErrInvalidCID
	}
	damaged := false
	for _, nb := range r.Backends {
		if nb.CAS == nil {
			continue
		}
		b, err := nb.CAS.Get(id)
		switch {
		case err == nil:
			if CheckContent(id, b) != nil {
				damaged = true
				continue
			}
			return b, nb.Name, nil
		case IsNotFound(err), IsMismatch(err):
			damaged = damaged || IsMismatch(err)
		default:
			return nil, "", fmt.Errorf("storage: get from %q: %w", nb.Name, err)
		}
	}
	if damaged {
		return nil, "", ErrCIDMismatch
	}
	return nil, "", ErrNotFound
}

func (r ReplicatingCAS) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}

// Repair copies a verified replica of id onto every backend that lacks it and
// returns the names of the backends written to.
func (r ReplicatingCAS) Repair(id cid.Cid) ([]string, error) {
	b, source, err := r.get(id)
	if err != nil {
		return nil, err
	}
	var repaired []string
	for _, nb := range r.Backends {
		if nb.CAS == nil || nb.Name == source || nb.CAS.Has(id) {
			continue
		}
		got, err := nb.CAS.Put(b)
		if err != nil {
			return repaired, fmt.Errorf("storage: repair %q: %w", nb.Name, err)
		}
		if got != id {
			return repaired, ErrCIDMismatch
		}
		repaired = append(repaired, nb.Name)
	}
	return repaired, nil
}
