package digest

import (
	"crypto"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"hash"
	"io"
	"strings"
	"sync"

	"github.com/multiformats/go-multihash"
	godigest "github.com/opencontainers/go-digest"
	"golang.org/x/crypto/sha3"
)

// Provider names a digest algorithm with a fixed output length.
//
// The zero value is "no provider" and is rejected by every operation.
type Provider uint8

const (
	SHA256 Provider = iota + 1
	SHA384
	SHA512
	SHA3_256
	SHA3_512
)

// multicodec sha2-384; not every go-multihash release exports a constant for it.
const multihashSHA2_384 uint64 = 0x20

type providerInfo struct {
	name    string
	length  int
	hash    crypto.Hash
	newHash func() hash.Hash
	oid     asn1.ObjectIdentifier
	mhCode  uint64
	oci     godigest.Algorithm
}

var providerTable = map[Provider]providerInfo{
	SHA256: {
		name: "sha256", length: sha256.Size, hash: crypto.SHA256, newHash: sha256.New,
		oid: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}, mhCode: multihash.SHA2_256, oci: godigest.SHA256,
	},
	SHA384: {
		name: "sha384", length: sha512.Size384, hash: crypto.SHA384, newHash: sha512.New384,
		oid: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}, mhCode: multihashSHA2_384, oci: godigest.SHA384,
	},
	SHA512: {
		name: "sha512", length: sha512.Size, hash: crypto.SHA512, newHash: sha512.New,
		oid: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}, mhCode: multihash.SHA2_512, oci: godigest.SHA512,
	},
	SHA3_256: {
		name: "sha3-256", length: 32, hash: crypto.SHA3_256, newHash: sha3.New256,
		oid: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 8}, mhCode: multihash.SHA3_256,
	},
	SHA3_512: {
		name: "sha3-512", length: 64, hash: crypto.SHA3_512, newHash: sha3.New512,
		oid: asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 10}, mhCode: multihash.SHA3_512,
	},
}

// Signature algorithm identifiers that imply a digest provider.
var signatureOIDs = []struct {
	oid asn1.ObjectIdentifier
	p   Provider
}{
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}, SHA256}, // sha256WithRSAEncryption
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}, SHA384},
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}, SHA512},
	{asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}, SHA256}, // ecdsa-with-SHA256
	{asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}, SHA384},
	{asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}, SHA512},
	{asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 14}, SHA3_256}, // id-rsassa-pkcs1-v1_5-with-sha3-256
	{asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 16}, SHA3_512},
}

// Providers returns every supported provider in declaration order.
func Providers() []Provider {
	return []Provider{SHA256, SHA384, SHA512, SHA3_256, SHA3_512}
}

func (p Provider) info() (providerInfo, error) {
	info, ok := providerTable[p]
	if !ok {
		return providerInfo{}, NewError(KindUnsupportedProvider, "SIG-PROV-001", fmt.Sprintf("unsupported digest provider %d", uint8(p)))
	}
	return info, nil
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	_, ok := providerTable[p]
	return ok
}

func (p Provider) String() string {
	if info, ok := providerTable[p]; ok {
		return info.name
	}
	return fmt.Sprintf("provider(%d)", uint8(p))
}

// ByteLength returns the fixed digest length of p in bytes.
func ByteLength(p Provider) (int, error) {
	info, err := p.info()
	if err != nil {
		return 0, err
	}
	return info.length, nil
}

// ParseProvider accepts the canonical names ("sha256", "sha3-512") as well as the
// common spellings "SHA256" and "SHA-256".
func ParseProvider(name string) (Provider, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.Replace(n, "sha-", "sha", 1)
	n = strings.Replace(n, "sha3_", "sha3-", 1)
	for _, p := range Providers() {
		if providerTable[p].name == n {
			return p, nil
		}
	}
	return 0, NewError(KindUnsupportedProvider, "SIG-PROV-002", fmt.Sprintf("unsupported digest provider %q", name))
}

// ToObjectIdentifier returns the NIST hash algorithm OID for p.
func ToObjectIdentifier(p Provider) (asn1.ObjectIdentifier, error) {
	info, err := p.info()
	if err != nil {
		return nil, err
	}
	return append(asn1.ObjectIdentifier(nil), info.oid...), nil
}

// FromObjectIdentifier maps a hash algorithm OID back to its provider. Signature
// algorithm OIDs found in certificates (RSA PKCS#1 v1.5, ECDSA) are accepted and
// resolve to the digest they are built on.
func FromObjectIdentifier(oid asn1.ObjectIdentifier) (Provider, error) {
	for _, p := range Providers() {
		if providerTable[p].oid.Equal(oid) {
			return p, nil
		}
	}
	for _, s := range signatureOIDs {
		if s.oid.Equal(oid) {
			return s.p, nil
		}
	}
	return 0, NewError(KindUnsupportedProvider, "SIG-PROV-003", fmt.Sprintf("no digest provider for object identifier %s", oid))
}

// ProviderFromSignatureAlgorithm infers the digest provider from a certificate's
// declared signature algorithm.
func ProviderFromSignatureAlgorithm(alg x509.SignatureAlgorithm) (Provider, error) {
	switch alg {
	case x509.SHA256WithRSA, x509.SHA256WithRSAPSS, x509.ECDSAWithSHA256:
		return SHA256, nil
	case x509.SHA384WithRSA, x509.SHA384WithRSAPSS, x509.ECDSAWithSHA384:
		return SHA384, nil
	case x509.SHA512WithRSA, x509.SHA512WithRSAPSS, x509.ECDSAWithSHA512, x509.PureEd25519:
		return SHA512, nil
	default:
		return 0, NewError(KindUnsupportedProvider, "SIG-PROV-004", fmt.Sprintf("no digest provider for signature algorithm %s", alg))
	}
}

// MultihashCode returns the multicodec function code for p.
func (p Provider) MultihashCode() (uint64, error) {
	info, err := p.info()
	if err != nil {
		return 0, err
	}
	return info.mhCode, nil
}

// ProviderFromMultihash maps a multicodec function code to its provider.
func ProviderFromMultihash(code uint64) (Provider, error) {
	for _, p := range Providers() {
		if providerTable[p].mhCode == code {
			return p, nil
		}
	}
	return 0, NewError(KindUnsupportedProvider, "SIG-PROV-005", fmt.Sprintf("no digest provider for multihash code 0x%x", code))
}

// Handle is a reusable entry point to the digest primitive of one provider.
// Handles are safe for concurrent use.
type Handle struct {
	provider Provider
	hash     crypto.Hash
	length   int
	pool     sync.Pool
}

// Provider returns the provider the handle computes.
func (h *Handle) Provider() Provider { return h.provider }

// CryptoHash returns the crypto.Hash identifier of the provider.
func (h *Handle) CryptoHash() crypto.Hash { return h.hash }

// Size returns the digest length in bytes.
func (h *Handle) Size() int { return h.length }

// Sum digests data in one call.
func (h *Handle) Sum(data []byte) []byte {
	hh := h.pool.Get().(hash.Hash)
	defer h.pool.Put(hh)
	hh.Reset()
	_, _ = hh.Write(data)
	return hh.Sum(nil)
}

// SumReader digests everything read from r and reports how many bytes were read.
func (h *Handle) SumReader(r io.Reader) ([]byte, int64, error) {
	hh := h.pool.Get().(hash.Hash)
	defer h.pool.Put(hh)
	hh.Reset()
	n, err := io.Copy(hh, r)
	if err != nil {
		return nil, n, err
	}
	return hh.Sum(nil), n, nil
}

var handles [SHA3_512 + 1]struct {
	once sync.Once
	h    *Handle
}

// AlgorithmHandle returns the process-wide handle for p, creating it on first use.
func AlgorithmHandle(p Provider) (*Handle, error) {
	info, err := p.info()
	if err != nil {
		return nil, err
	}
	slot := &handles[p]
	slot.once.Do(func() {
		newHash := info.newHash
		slot.h = &Handle{
			provider: p,
			hash:     info.hash,
			length:   info.length,
			pool:     sync.Pool{New: func() any { return newHash() }},
		}
	})
	return slot.h, nil
}
