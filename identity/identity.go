// Package identity wraps an X.509 certificate and its optional RSA private key
// as a signer for digests.
//
// An Identity fingerprints itself with a digest over its PKCS#1 encoded public
// key. The provider for that digest is inferred from the certificate's own
// signature algorithm. Signed digests reference their signer by this
// fingerprint rather than by embedding the certificate.
//
// Signatures are RSA PKCS#1 v1.5 over the DigestInfo of the digest bytes (see
// digest.DigestInfo), so their length is always KeyLengthBits/8.
package identity

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sigstore/sigstore/pkg/cryptoutils"
	"software.sslmate.com/src/go-pkcs12"

	"xdao.co/signet/digest"
)

// Identity is a certificate with an optional private key. The zero value holds
// no certificate; CheckCertificate reports that.
type Identity struct {
	cert        *x509.Certificate
	pub         *rsa.PublicKey
	key         *rsa.PrivateKey
	provider    digest.Provider
	fingerprint *digest.Digest

	// pending holds an encrypted envelope decoded from JSON until Unlock
	// receives its password.
	mu      sync.Mutex
	pending *Envelope
}

var _ digest.Signer = (*Identity)(nil)

// New builds an identity from a parsed certificate and an optional private key.
// Only RSA keys are supported. The key must match the certificate.
func New(cert *x509.Certificate, key crypto.PrivateKey) (*Identity, error) {
	if cert == nil {
		return nil, digest.NewError(digest.KindMissingCertificate, "SIG-ID-001", "no certificate")
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, digest.NewError(digest.KindUnsupportedKey, "SIG-ID-002",
			fmt.Sprintf("unsupported certificate key type %T", cert.PublicKey))
	}
	p, err := digest.ProviderFromSignatureAlgorithm(cert.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}

	id := &Identity{cert: cert, pub: pub, provider: p}
	if key != nil {
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, digest.NewError(digest.KindUnsupportedKey, "SIG-ID-003",
				fmt.Sprintf("unsupported private key type %T", key))
		}
		if err := cryptoutils.EqualKeys(pub, priv.Public()); err != nil {
			return nil, digest.WrapError(digest.KindUnsupportedKey, "SIG-ID-004", "private key does not match certificate", err)
		}
		id.key = priv
	}

	fp, err := digest.Compute(x509.MarshalPKCS1PublicKey(pub), p, nil)
	if err != nil {
		return nil, err
	}
	id.fingerprint = fp
	return id, nil
}

// FromDER parses a DER certificate into a public-key-only identity.
func FromDER(der []byte) (*Identity, error) {
	if len(der) == 0 {
		return nil, digest.NewError(digest.KindMissingCertificate, "SIG-ID-005", "empty certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, digest.WrapError(digest.KindEncoding, "SIG-ID-006", "parse certificate", err)
	}
	return New(cert, nil)
}

// LoadPFX reads a PKCS#12 archive. Archives holding a key yield a signing
// identity; certificate-only trust stores yield a public-key-only identity.
func LoadPFX(data []byte, password string) (*Identity, error) {
	if len(data) == 0 {
		return nil, digest.NewError(digest.KindMissingCertificate, "SIG-ID-010", "empty PKCS#12 data")
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err == nil {
		return New(cert, key)
	}
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		if password == "" {
			return nil, digest.NewError(digest.KindMissingPassword, "SIG-ID-011", "PKCS#12 data is encrypted")
		}
		return nil, digest.WrapError(digest.KindCrypto, "SIG-ID-012", "decrypt PKCS#12 data", err)
	}
	certs, terr := pkcs12.DecodeTrustStore(data, password)
	if terr != nil || len(certs) == 0 {
		return nil, digest.WrapError(digest.KindEncoding, "SIG-ID-013", "decode PKCS#12 data", err)
	}
	return New(certs[0], nil)
}

// LoadPEM reads the first certificate in certPEM and, when keyPEM is given, the
// matching private key. Encrypted keys need a password.
func LoadPEM(certPEM, keyPEM []byte, password string) (*Identity, error) {
	certs, err := cryptoutils.UnmarshalCertificatesFromPEM(certPEM)
	if err != nil {
		return nil, digest.WrapError(digest.KindEncoding, "SIG-ID-020", "parse certificate PEM", err)
	}
	if len(certs) == 0 {
		return nil, digest.NewError(digest.KindMissingCertificate, "SIG-ID-021", "no certificate in PEM data")
	}
	if len(keyPEM) == 0 {
		return New(certs[0], nil)
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, digest.NewError(digest.KindEncoding, "SIG-ID-022", "no PEM block in key data")
	}
	if strings.Contains(block.Type, "ENCRYPTED") && password == "" {
		return nil, digest.NewError(digest.KindMissingPassword, "SIG-ID-023", "private key is encrypted")
	}
	var passFunc cryptoutils.PassFunc
	if password != "" {
		passFunc = func(_ bool) ([]byte, error) {
			return []byte(password), nil
		}
	}
	key, err := cryptoutils.UnmarshalPEMToPrivateKey(keyPEM, passFunc)
	if err != nil {
		return nil, digest.WrapError(digest.KindEncoding, "SIG-ID-024", "parse private key PEM", err)
	}
	return New(certs[0], key)
}

// CheckCertificate fails with KindMissingCertificate when no certificate is
// loaded, including while an encrypted envelope waits for Unlock.
func (id *Identity) CheckCertificate() error {
	if id == nil || id.loaded() == nil {
		return digest.NewError(digest.KindMissingCertificate, "SIG-ID-030", "no certificate loaded")
	}
	return nil
}

func (id *Identity) loaded() *x509.Certificate {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.cert
}

// Certificate returns the wrapped certificate.
func (id *Identity) Certificate() *x509.Certificate {
	if id == nil {
		return nil
	}
	return id.loaded()
}

// PublicKey returns the RSA public key of the certificate.
func (id *Identity) PublicKey() *rsa.PublicKey {
	if id == nil {
		return nil
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.pub
}

// Provider is the digest provider inferred from the certificate.
func (id *Identity) Provider() digest.Provider {
	if id == nil {
		return 0
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.provider
}

func (id *Identity) HasPrivateKey() bool {
	if id == nil {
		return false
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.key != nil
}

// KeyLengthBits is the modulus size rounded up to whole bytes, which is what
// PKCS#1 v1.5 signatures are padded to.
func (id *Identity) KeyLengthBits() int {
	pub := id.PublicKey()
	if pub == nil {
		return 0
	}
	return pub.Size() * 8
}

// Fingerprint returns the bytes of the identity's public key digest.
func (id *Identity) Fingerprint() []byte {
	fp := id.FingerprintDigest()
	if fp == nil {
		return nil
	}
	return fp.Bytes()
}

// FingerprintDigest returns the identity's public key digest.
func (id *Identity) FingerprintDigest() *digest.Digest {
	if id == nil {
		return nil
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.fingerprint
}

// SerialNumber returns the certificate serial number in lowercase hex.
func (id *Identity) SerialNumber() string {
	cert := id.Certificate()
	if cert == nil || cert.SerialNumber == nil {
		return ""
	}
	return cert.SerialNumber.Text(16)
}

// HashableData returns the PKCS#1 encoded public key, the bytes the fingerprint
// is computed over.
func (id *Identity) HashableData() ([]byte, error) {
	if err := id.CheckCertificate(); err != nil {
		return nil, err
	}
	return x509.MarshalPKCS1PublicKey(id.PublicKey()), nil
}

// RemovePrivateKey returns a public-key-only identity re-parsed from the raw
// certificate. id is left unchanged.
func (id *Identity) RemovePrivateKey() (*Identity, error) {
	if err := id.CheckCertificate(); err != nil {
		return nil, err
	}
	return FromDER(id.Certificate().Raw)
}

// Sign signs d with the private key; see digest.Digest.Sign.
func (id *Identity) Sign(d *digest.Digest, p digest.Provider) error {
	if err := id.CheckCertificate(); err != nil {
		return err
	}
	if d == nil {
		return digest.NewError(digest.KindNullData, "SIG-ID-031", "no digest to sign")
	}
	return d.Sign(p, id)
}

// Verify checks the signature on d with the public key only. Unsigned digests
// do not verify.
func (id *Identity) Verify(d *digest.Digest, p digest.Provider) bool {
	if d == nil || id.CheckCertificate() != nil {
		return false
	}
	sig := d.Signature()
	if len(sig) == 0 {
		return false
	}
	return id.VerifyBytes(p, d.Bytes(), sig)
}

func (id *Identity) SignBytes(p digest.Provider, digestBytes []byte) ([]byte, error) {
	if !id.HasPrivateKey() {
		return nil, digest.NewError(digest.KindNoPrivateKey, "SIG-ID-032", "identity has no private key")
	}
	info, err := digest.DigestInfo(p, digestBytes)
	if err != nil {
		return nil, err
	}
	id.mu.Lock()
	key := id.key
	id.mu.Unlock()
	return rsa.SignPKCS1v15(rand.Reader, key, 0, info)
}

func (id *Identity) VerifyBytes(p digest.Provider, digestBytes, signature []byte) bool {
	pub := id.PublicKey()
	if pub == nil {
		return false
	}
	info, err := digest.DigestInfo(p, digestBytes)
	if err != nil {
		return false
	}
	return rsa.VerifyPKCS1v15(pub, 0, info, signature) == nil
}

func (id *Identity) String() string {
	cert := id.Certificate()
	if cert == nil {
		return "identity(<none>)"
	}
	return fmt.Sprintf("identity(%s serial=%s)", cert.Subject.CommonName, id.SerialNumber())
}
