package digest_test

import (
	"crypto/x509"
	"testing"

	"xdao.co/signet/digest"
	"xdao.co/signet/identity"
	"xdao.co/signet/internal/testcert"
)

func signer(t *testing.T, name string) *identity.Identity {
	t.Helper()
	pair := testcert.SelfSigned(t, name, x509.SHA256WithRSA)
	id, err := identity.New(pair.Cert, pair.Key)
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	return id
}

func TestComputeSignsWithPrivateKey(t *testing.T) {
	alice := signer(t, "alice")
	data := []byte("Test")
	for _, p := range digest.Providers() {
		d, err := digest.Compute(data, p, alice)
		if err != nil {
			t.Fatalf("Compute(%s): %v", p, err)
		}
		if !d.IsSigned() {
			t.Fatalf("%s: expected signature", p)
		}
		if ok, reason := d.Verify(data, alice); !ok {
			t.Fatalf("%s: Verify: %s", p, reason)
		}
	}

	public, err := alice.RemovePrivateKey()
	if err != nil {
		t.Fatalf("RemovePrivateKey: %v", err)
	}
	d, err := digest.Compute(data, digest.SHA256, public)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if d.IsSigned() {
		t.Fatalf("public-only signer must not sign")
	}
}

func TestCrossSignerRejection(t *testing.T) {
	alice := signer(t, "alice")
	bob := signer(t, "bob")
	data := []byte("endorsed")

	d, err := digest.Compute(data, digest.SHA256, alice)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if ok, reason := d.Verify(data, bob); ok || reason != digest.ReasonSignatureInvalid {
		t.Fatalf("bob: got %v %q", ok, reason)
	}
	public, _ := alice.RemovePrivateKey()
	if ok, reason := d.Verify(data, public); !ok {
		t.Fatalf("alice public: %s", reason)
	}
}

func TestVerifyReasons(t *testing.T) {
	alice := signer(t, "alice")
	data := []byte("Test")
	d, err := digest.Compute(data, digest.SHA256, alice)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	cases := []struct {
		name   string
		data   []byte
		signer digest.Signer
		want   string
	}{
		{"no signer", data, nil, digest.ReasonNoSigner},
		{"changed data", []byte("Tesu"), alice, digest.ReasonMismatch},
		{"nil data", nil, alice, digest.ReasonNoData},
	}
	for _, tc := range cases {
		ok, reason := d.Verify(tc.data, tc.signer)
		if ok || reason != tc.want {
			t.Fatalf("%s: got %v %q want %q", tc.name, ok, reason, tc.want)
		}
	}
}

func TestStructuralValidity(t *testing.T) {
	alice := signer(t, "alice")
	d, _ := digest.Compute([]byte("Test"), digest.SHA256, alice)

	if ok, reason := d.IsStructurallyValid(alice.KeyLengthBits()); !ok {
		t.Fatalf("valid digest rejected: %s", reason)
	}
	if ok, reason := d.IsStructurallyValid(0); ok || reason != digest.ReasonNoSigner {
		t.Fatalf("missing key length: %v %q", ok, reason)
	}
	if ok, reason := d.IsStructurallyValid(4096); ok || reason != digest.ReasonSignatureLength {
		t.Fatalf("wrong key length: %v %q", ok, reason)
	}

	var empty digest.Digest
	if ok, reason := empty.IsStructurallyValid(0); ok || reason != digest.ReasonNoProvider {
		t.Fatalf("empty digest: %v %q", ok, reason)
	}
}

func TestSignPreconditions(t *testing.T) {
	alice := signer(t, "alice")
	public, _ := alice.RemovePrivateKey()

	d, _ := digest.Compute([]byte("Test"), digest.SHA256, nil)
	if err := d.Sign(digest.SHA256, nil); !digest.IsKind(err, digest.KindMissingCertificate) {
		t.Fatalf("nil signer: %v", err)
	}
	if err := d.Sign(digest.SHA256, public); !digest.IsKind(err, digest.KindNoPrivateKey) {
		t.Fatalf("public signer: %v", err)
	}
	if err := d.Sign(digest.SHA512, alice); !digest.IsKind(err, digest.KindUnsupportedProvider) {
		t.Fatalf("provider mismatch: %v", err)
	}
	if err := d.Sign(digest.SHA256, alice); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := d.Sign(digest.SHA256, alice); !digest.IsKind(err, digest.KindImmutableField) {
		t.Fatalf("second Sign: %v", err)
	}
	bob := signer(t, "bob")
	if err := bob.Sign(d, digest.SHA256); !digest.IsKind(err, digest.KindImmutableField) {
		t.Fatalf("second signer: %v", err)
	}
}

func TestBase64RoundTripKeepsSignature(t *testing.T) {
	alice := signer(t, "alice")
	d, _ := digest.Compute([]byte("Test"), digest.SHA384, alice)

	for _, urlSafe := range []bool{false, true} {
		for _, padding := range []bool{false, true} {
			r, err := digest.FromBase64(d.Base64(urlSafe, padding), digest.SHA384, nil, nil)
			if err != nil {
				t.Fatalf("FromBase64: %v", err)
			}
			if digest.Compare(r, d) != 0 {
				t.Fatalf("url=%v pad=%v: mismatch", urlSafe, padding)
			}
			if err := r.SetSignature(d.Signature(), d.SignerFingerprint()); err != nil {
				t.Fatalf("SetSignature: %v", err)
			}
			if ok, reason := r.Verify([]byte("Test"), alice); !ok {
				t.Fatalf("rehydrated digest: %s", reason)
			}
		}
	}
}
