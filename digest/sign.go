package digest

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"io"
)

// Signer is the key material a Digest is signed and verified with.
// identity.Identity is the implementation used throughout the repo.
type Signer interface {
	// HasPrivateKey reports whether SignBytes can be used.
	HasPrivateKey() bool
	// KeyLengthBits is the modulus size in whole bytes, times 8; signatures
	// are KeyLengthBits/8 bytes.
	KeyLengthBits() int
	// Fingerprint identifies the signer's public key.
	Fingerprint() []byte
	SignBytes(p Provider, digestBytes []byte) ([]byte, error)
	VerifyBytes(p Provider, digestBytes, signature []byte) bool
}

// Verification failure reasons.
const (
	ReasonNoBytes          = "no digest bytes"
	ReasonWrongLength      = "digest is the wrong length"
	ReasonNoProvider       = "digest has no provider"
	ReasonNoSigner         = "signed but no signer provided"
	ReasonSignatureLength  = "signature is the wrong length"
	ReasonSignatureInvalid = "signature invalid"
	ReasonMismatch         = "computed digest does not match"
	ReasonNoData           = "no data to verify"
)

// DigestInfo hashes digestBytes with p and wraps the result in the PKCS#1 v1.5
// DigestInfo structure. Signers pass it to rsa.SignPKCS1v15 with hash 0, which
// keeps the SHA-3 providers usable with the same padding.
func DigestInfo(p Provider, digestBytes []byte) ([]byte, error) {
	h, err := AlgorithmHandle(p)
	if err != nil {
		return nil, err
	}
	oid, err := ToObjectIdentifier(p)
	if err != nil {
		return nil, err
	}
	info := struct {
		Algorithm pkix.AlgorithmIdentifier
		Digest    []byte
	}{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: oid, Parameters: asn1.NullRawValue},
		Digest:    h.Sum(digestBytes),
	}
	out, err := asn1.Marshal(info)
	if err != nil {
		return nil, WrapError(KindInternal, "SIG-SIGN-001", "encode DigestInfo", err)
	}
	return out, nil
}

// IsStructurallyValid checks the digest bytes against the provider length and,
// when signed, the signature length against the signer key size. Pass 0 when no
// signer is available.
func (d *Digest) IsStructurallyValid(signerKeyLengthBits int) (bool, string) {
	if !d.provider.Valid() {
		return false, ReasonNoProvider
	}
	if len(d.bytes) == 0 {
		return false, ReasonNoBytes
	}
	if want, _ := ByteLength(d.provider); len(d.bytes) != want {
		return false, ReasonWrongLength
	}
	sig := d.Signature()
	if len(sig) == 0 {
		return true, ""
	}
	if signerKeyLengthBits <= 0 {
		return false, ReasonNoSigner
	}
	if len(sig) != signerKeyLengthBits/8 {
		return false, ReasonSignatureLength
	}
	return true, ""
}

// Sign signs the digest bytes with signer's private key and records the signer
// fingerprint. p must be the provider the digest was computed with.
func (d *Digest) Sign(p Provider, signer Signer) error {
	if signer == nil {
		return NewError(KindMissingCertificate, "SIG-SIGN-010", "no signer")
	}
	if !signer.HasPrivateKey() {
		return NewError(KindNoPrivateKey, "SIG-SIGN-011", "signer has no private key")
	}
	if p != d.provider {
		return NewError(KindUnsupportedProvider, "SIG-SIGN-012",
			fmt.Sprintf("cannot sign a %s digest with provider %s", d.provider, p))
	}
	if d.IsSigned() {
		return immutable("signature", "SIG-DIGEST-024")
	}
	sig, err := signer.SignBytes(p, d.bytes)
	if err != nil {
		return WrapError(KindCrypto, "SIG-SIGN-013", "sign digest", err)
	}
	return d.SetSignature(sig, signer.Fingerprint())
}

// Verify checks that the digest is well formed, that its signature (if any)
// verifies against signer, and that recomputing over data yields the same bytes.
// The first failing check's reason is returned.
func (d *Digest) Verify(data []byte, signer Signer) (bool, string) {
	if ok, reason := d.verifyStructureAndSignature(signer); !ok {
		return false, reason
	}
	if data == nil {
		return false, ReasonNoData
	}
	fresh, err := Compute(data, d.provider, nil)
	if err != nil {
		return false, err.Error()
	}
	if !Equal(d, fresh) {
		return false, ReasonMismatch
	}
	return true, ""
}

// VerifyReader is Verify over everything read from r.
func (d *Digest) VerifyReader(r io.Reader, signer Signer) (bool, string) {
	if ok, reason := d.verifyStructureAndSignature(signer); !ok {
		return false, reason
	}
	if r == nil {
		return false, ReasonNoData
	}
	fresh, err := ComputeReader(r, d.provider, nil)
	if err != nil {
		return false, err.Error()
	}
	if !Equal(d, fresh) {
		return false, ReasonMismatch
	}
	return true, ""
}

func (d *Digest) verifyStructureAndSignature(signer Signer) (bool, string) {
	keyBits := 0
	if signer != nil {
		keyBits = signer.KeyLengthBits()
	}
	if ok, reason := d.IsStructurallyValid(keyBits); !ok {
		return false, reason
	}
	sig := d.Signature()
	if len(sig) == 0 {
		return true, ""
	}
	if signer == nil {
		return false, ReasonNoSigner
	}
	if !signer.VerifyBytes(d.provider, d.bytes, sig) {
		return false, ReasonSignatureInvalid
	}
	return true, ""
}
