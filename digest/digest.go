// Package digest computes, compares, signs and verifies fixed-length digests.
//
// A Digest carries the digest bytes and the provider that produced them, plus
// optional metadata that may be assigned exactly once: the signature with the
// fingerprint of its signer, the computation time and the number of source bytes.
// A second assignment of any of these fails with KindImmutableField.
//
// Digests order by their bytes alone (see package ordering); provider, signature
// and metadata never take part in comparisons.
package digest

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"xdao.co/signet/b64"
	"xdao.co/signet/ordering"
)

// Digest is the output of a provider over some data. Share it by pointer.
type Digest struct {
	mu sync.Mutex

	provider Provider
	bytes    []byte

	signature         []byte
	signerFingerprint []byte
	computedAt        *time.Time
	sourceByteLength  *int64
}

// Compute digests data with provider p. When signer is non-nil and holds a
// private key the digest is signed before it is returned.
//
// data must be non-nil; an empty slice is valid input.
func Compute(data []byte, p Provider, signer Signer) (*Digest, error) {
	if data == nil {
		return nil, NewError(KindNullData, "SIG-DIGEST-001", "data is nil")
	}
	h, err := AlgorithmHandle(p)
	if err != nil {
		return nil, err
	}
	d := &Digest{provider: p, bytes: h.Sum(data)}
	d.stamp(int64(len(data)))
	if err := d.signIfPossible(p, signer); err != nil {
		return nil, err
	}
	return d, nil
}

// ComputeReader is Compute over everything read from r.
func ComputeReader(r io.Reader, p Provider, signer Signer) (*Digest, error) {
	if r == nil {
		return nil, NewError(KindNullData, "SIG-DIGEST-002", "reader is nil")
	}
	h, err := AlgorithmHandle(p)
	if err != nil {
		return nil, err
	}
	sum, n, err := h.SumReader(r)
	if err != nil {
		return nil, WrapError(KindInternal, "SIG-DIGEST-003", "read source", err)
	}
	d := &Digest{provider: p, bytes: sum}
	d.stamp(n)
	if err := d.signIfPossible(p, signer); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Digest) stamp(n int64) {
	now := time.Now().UTC()
	d.computedAt = &now
	d.sourceByteLength = &n
}

func (d *Digest) signIfPossible(p Provider, signer Signer) error {
	if signer == nil || !signer.HasPrivateKey() {
		return nil
	}
	return d.Sign(p, signer)
}

// FromPrecomputedBytes rehydrates a digest from stored bytes. It never signs.
// sourceByteLength and computedAt are optional.
func FromPrecomputedBytes(b []byte, p Provider, sourceByteLength *int64, computedAt *time.Time) (*Digest, error) {
	want, err := ByteLength(p)
	if err != nil {
		return nil, err
	}
	if len(b) != want {
		return nil, NewError(KindLengthMismatch, "SIG-DIGEST-010",
			fmt.Sprintf("%s digest must be %d bytes, got %d", p, want, len(b)))
	}
	d := &Digest{provider: p, bytes: append([]byte(nil), b...)}
	if sourceByteLength != nil {
		if err := d.SetSourceByteLength(*sourceByteLength); err != nil {
			return nil, err
		}
	}
	if computedAt != nil {
		if err := d.SetComputedAt(*computedAt); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// FromBase64 decodes text in either base64 alphabet, padded or not, and
// delegates to FromPrecomputedBytes.
func FromBase64(text string, p Provider, sourceByteLength *int64, computedAt *time.Time) (*Digest, error) {
	b, ok := b64.Decode(text, false)
	if !ok {
		return nil, NewError(KindEncoding, "SIG-DIGEST-011", "digest text is not valid base64")
	}
	return FromPrecomputedBytes(b, p, sourceByteLength, computedAt)
}

// Provider returns the provider that produced the digest.
func (d *Digest) Provider() Provider { return d.provider }

// Bytes returns a copy of the digest bytes.
func (d *Digest) Bytes() []byte { return append([]byte(nil), d.bytes...) }

// Len returns the number of digest bytes.
func (d *Digest) Len() int { return len(d.bytes) }

// Signature returns a copy of the signature, or nil when unsigned.
func (d *Digest) Signature() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneOrNil(d.signature)
}

// SignerFingerprint returns the fingerprint of the identity that signed the
// digest, or nil when unsigned.
func (d *Digest) SignerFingerprint() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneOrNil(d.signerFingerprint)
}

// IsSigned reports whether a signature has been attached.
func (d *Digest) IsSigned() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.signature) > 0
}

// ComputedAt returns the computation time when known.
func (d *Digest) ComputedAt() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.computedAt == nil {
		return time.Time{}, false
	}
	return *d.computedAt, true
}

// SourceByteLength returns the number of digested bytes when known.
func (d *Digest) SourceByteLength() (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sourceByteLength == nil {
		return 0, false
	}
	return *d.sourceByteLength, true
}

// SetComputedAt records when the digest was computed. It may be called once.
func (d *Digest) SetComputedAt(t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.computedAt != nil {
		return immutable("computed_at", "SIG-DIGEST-020")
	}
	t = t.UTC()
	d.computedAt = &t
	return nil
}

// SetSourceByteLength records the size of the digested input. It may be called once.
func (d *Digest) SetSourceByteLength(n int64) error {
	if n < 0 {
		return NewError(KindInternal, "SIG-DIGEST-021", fmt.Sprintf("negative source length %d", n))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sourceByteLength != nil {
		return immutable("source_byte_length", "SIG-DIGEST-022")
	}
	d.sourceByteLength = &n
	return nil
}

// SetSignature attaches a signature produced elsewhere together with the
// fingerprint of its signer. It may be called once; Sign uses the same slot.
func (d *Digest) SetSignature(signature, signerFingerprint []byte) error {
	if len(signature) == 0 {
		return NewError(KindNullData, "SIG-DIGEST-023", "signature is empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.signature) > 0 {
		return immutable("signature", "SIG-DIGEST-024")
	}
	d.signature = append([]byte(nil), signature...)
	d.signerFingerprint = cloneOrNil(signerFingerprint)
	return nil
}

func immutable(field, rule string) error {
	return NewError(KindImmutableField, rule, fmt.Sprintf("%s is already set", field))
}

func cloneOrNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

// Compare orders digests by their bytes. A nil digest is absent and sorts
// before every present digest; two absent digests are equal.
func Compare(a, b *Digest) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return ordering.Compare(a.bytes, b.bytes)
}

// Equal reports Compare(a, b) == 0.
func Equal(a, b *Digest) bool { return Compare(a, b) == 0 }

// Less reports Compare(a, b) < 0.
func Less(a, b *Digest) bool { return Compare(a, b) < 0 }

// Sort orders ds in place; absent entries come first.
func Sort(ds []*Digest) {
	slices.SortStableFunc(ds, Compare)
}
