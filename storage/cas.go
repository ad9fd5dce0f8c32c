package storage

import (
	"errors"
	"sort"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/digest"
)

// CAS is a minimal content-addressable storage interface.
//
// Contract:
//   - Put MUST be idempotent.
//   - Stored objects MUST be immutable.
//   - CIDs MUST be derived from the bytes written with the store's digest provider.
//   - Get MUST return ErrNotFound when the CID is absent and ErrCIDMismatch when
//     the stored bytes no longer digest to the CID.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// DefaultProvider is used by stores configured without a provider.
const DefaultProvider = digest.SHA256

// ProviderOrDefault maps the zero provider to DefaultProvider.
func ProviderOrDefault(p digest.Provider) digest.Provider {
	if p == 0 {
		return DefaultProvider
	}
	return p
}

// ContentID digests b with p and returns the CIDv1 naming it.
func ContentID(p digest.Provider, b []byte) (cid.Cid, error) {
	if b == nil {
		b = []byte{}
	}
	d, err := digest.Compute(b, ProviderOrDefault(p), nil)
	if err != nil {
		return cid.Undef, err
	}
	id, err := d.CID()
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, ErrInvalidCID
	}
	return id, nil
}

// CheckContent recomputes the digest of b with the provider recorded in id.
// It returns ErrInvalidCID for CIDs that do not carry a supported digest and
// ErrCIDMismatch when b does not match.
func CheckContent(id cid.Cid, b []byte) error {
	want, err := digest.FromCID(id)
	if err != nil {
		return ErrInvalidCID
	}
	if b == nil {
		b = []byte{}
	}
	if ok, _ := want.Verify(b, nil); !ok {
		return ErrCIDMismatch
	}
	return nil
}

// Lister is implemented by stores that can enumerate their objects.
type Lister interface {
	List() ([]cid.Cid, error)
}

// ErrNotListable is returned by List for stores that cannot enumerate.
var ErrNotListable = errors.New("storage: backend cannot list objects")

// List enumerates cas when it implements Lister. The result is sorted by the
// CID's string form and free of duplicates.
func List(cas CAS) ([]cid.Cid, error) {
	l, ok := cas.(Lister)
	if !ok {
		return nil, ErrNotListable
	}
	ids, err := l.List()
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	out := ids[:0]
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
