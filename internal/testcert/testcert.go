// Package testcert issues throwaway RSA certificates for tests.
//
// Key generation is slow, so keys are cached per name for the life of the test
// binary. The same name always returns the same key pair and certificate.
package testcert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"testing"
	"time"
)

const keyBits = 2048

// Pair is a certificate with its private key.
type Pair struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

type cacheKey struct {
	name string
	alg  x509.SignatureAlgorithm
	ca   string
}

var (
	mu     sync.Mutex
	keys   = map[string]*rsa.PrivateKey{}
	certs  = map[cacheKey]Pair{}
	serial = int64(1000)
)

func keyFor(t testing.TB, name string) *rsa.PrivateKey {
	t.Helper()
	if k, ok := keys[name]; ok {
		return k
	}
	k, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		t.Fatalf("testcert: generate key %q: %v", name, err)
	}
	keys[name] = k
	return k
}

// SelfSigned returns a self-signed leaf certificate for name signed with alg.
func SelfSigned(t testing.TB, name string, alg x509.SignatureAlgorithm) Pair {
	t.Helper()
	return issue(t, name, alg, nil, false)
}

// CA returns a self-signed certificate authority.
func CA(t testing.TB, name string) Pair {
	t.Helper()
	return issue(t, name, x509.SHA256WithRSA, nil, true)
}

// Issue returns a leaf certificate for name signed by ca.
func Issue(t testing.TB, name string, ca Pair) Pair {
	t.Helper()
	return issue(t, name, x509.SHA256WithRSA, &ca, false)
}

func issue(t testing.TB, name string, alg x509.SignatureAlgorithm, parent *Pair, isCA bool) Pair {
	t.Helper()
	mu.Lock()
	defer mu.Unlock()

	ck := cacheKey{name: name, alg: alg}
	if parent != nil {
		ck.ca = parent.Cert.Subject.CommonName
	}
	if p, ok := certs[ck]; ok {
		return p
	}

	key := keyFor(t, name)
	serial++
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: name, Organization: []string{"signet test"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		SignatureAlgorithm:    alg,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		BasicConstraintsValid: true,
	}
	if isCA {
		tmpl.IsCA = true
		tmpl.KeyUsage |= x509.KeyUsageCertSign
		tmpl.ExtKeyUsage = nil
	}

	signerCert, signerKey := tmpl, key
	if parent != nil {
		signerCert, signerKey = parent.Cert, parent.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, signerCert, &key.PublicKey, signerKey)
	if err != nil {
		t.Fatalf("testcert: create certificate %q: %v", name, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("testcert: parse certificate %q: %v", name, err)
	}
	p := Pair{Cert: cert, Key: key}
	certs[ck] = p
	return p
}
