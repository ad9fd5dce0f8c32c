// Package hashable turns domain objects into the bytes a digest is computed over.
//
// Content strategies implement Hashable. Objects that keep their digest
// alongside the content also implement Object, usually by embedding Holder;
// every content setter must call Invalidate so a stale digest is never kept.
package hashable

import (
	"io"
	"sync"

	"xdao.co/signet/digest"
)

// Hashable produces the bytes to digest.
type Hashable interface {
	HashableData() ([]byte, error)
}

// Object is a Hashable that owns the digest of its current content.
type Object interface {
	Hashable
	ComputedDigest() *digest.Digest
	SetComputedDigest(*digest.Digest)
	Invalidate()
}

// StreamHashable is implemented by content that can be digested without being
// read into memory. OpenHashable returns a reader positioned at the start.
type StreamHashable interface {
	OpenHashable() (io.ReadCloser, error)
}

// Holder keeps the digest slot of an Object. The zero value holds no digest.
type Holder struct {
	mu sync.Mutex
	d  *digest.Digest
}

// ComputedDigest returns the digest of the current content, or nil.
func (h *Holder) ComputedDigest() *digest.Digest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.d
}

// SetComputedDigest replaces the digest wholesale.
func (h *Holder) SetComputedDigest(d *digest.Digest) {
	h.mu.Lock()
	h.d = d
	h.mu.Unlock()
}

// Invalidate drops the digest.
func (h *Holder) Invalidate() { h.SetComputedDigest(nil) }

// ComputeHash digests the current content of o with provider p, signing when
// signer holds a private key, and stores the result on o.
func ComputeHash(o Object, p digest.Provider, signer digest.Signer) (*digest.Digest, error) {
	d, err := compute(o, p, signer)
	if err != nil {
		return nil, err
	}
	o.SetComputedDigest(d)
	return d, nil
}

// Compute digests any Hashable without storing the result.
func Compute(h Hashable, p digest.Provider, signer digest.Signer) (*digest.Digest, error) {
	return compute(h, p, signer)
}

func compute(h Hashable, p digest.Provider, signer digest.Signer) (*digest.Digest, error) {
	if h == nil {
		return nil, digest.NewError(digest.KindNullData, "SIG-HASH-001", "nothing to hash")
	}
	if s, ok := h.(StreamHashable); ok {
		rc, err := s.OpenHashable()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return digest.ComputeReader(rc, p, signer)
	}
	data, err := h.HashableData()
	if err != nil {
		return nil, err
	}
	return digest.Compute(data, p, signer)
}

// Verify checks the stored digest of o against its current content.
func Verify(o Object, signer digest.Signer) (bool, string) {
	return VerifyDigest(o, o.ComputedDigest(), signer)
}

// VerifyDigest checks d against the current content of h.
func VerifyDigest(h Hashable, d *digest.Digest, signer digest.Signer) (bool, string) {
	if d == nil {
		return false, ReasonNoDigest
	}
	if s, ok := h.(StreamHashable); ok {
		rc, err := s.OpenHashable()
		if err != nil {
			return false, err.Error()
		}
		defer rc.Close()
		return d.VerifyReader(rc, signer)
	}
	data, err := h.HashableData()
	if err != nil {
		return false, err.Error()
	}
	return d.Verify(data, signer)
}

// ReasonNoDigest is reported by Verify when nothing has been computed yet.
const ReasonNoDigest = "no digest computed"

// ComputedBytes returns the bytes of the stored digest.
func ComputedBytes(o Object) ([]byte, error) {
	d := o.ComputedDigest()
	if d == nil {
		return nil, digest.NewError(digest.KindNullData, "SIG-HASH-002", "no digest computed")
	}
	return d.Bytes(), nil
}
