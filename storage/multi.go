package storage

import (
	"github.com/ipfs/go-cid"
)

// MultiCAS reads through an ordered list of stores and writes to the first.
//
// The order of Adapters is the lookup order and must be fixed by the caller.
// With Backfill set, an object found further down the list is copied into the
// first store, which then acts as a read-through cache for the others.
type MultiCAS struct {
	Adapters []CAS
	Backfill bool
}

var (
	_ CAS    = MultiCAS{}
	_ Lister = MultiCAS{}
)

func (m MultiCAS) Put(bytes []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, ErrNoBackends
	}
	return m.Adapters[0].Put(bytes)
}

// Get returns the object from the first store that has it. A store that
// answers with an error other than ErrNotFound ends the lookup.
func (m MultiCAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	for i, cas := range m.Adapters {
		b, err := cas.Get(id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if i > 0 && m.Backfill {
			if _, err := m.Adapters[0].Put(b); err != nil {
				return nil, err
			}
		}
		return b, nil
	}
	return nil, ErrNotFound
}

func (m MultiCAS) Has(id cid.Cid) bool {
	for _, cas := range m.Adapters {
		if cas.Has(id) {
			return true
		}
	}
	return false
}

// List merges the listings of every store that can enumerate. Stores that
// cannot are skipped; ErrNotListable is returned only when none can.
func (m MultiCAS) List() ([]cid.Cid, error) {
	var (
		all    []cid.Cid
		listed bool
	)
	for _, cas := range m.Adapters {
		ids, err := List(cas)
		if err == ErrNotListable {
			continue
		}
		if err != nil {
			return nil, err
		}
		listed = true
		all = append(all, ids...)
	}
	if !listed {
		return nil, ErrNotListable
	}
	return all, nil
}
