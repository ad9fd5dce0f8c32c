package cidutil

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

func TestFromSumMatchesMultihashSum(t *testing.T) {
	data := []byte("hello, signet")
	sum := sha256.Sum256(data)

	got, err := FromSum(multihash.SHA2_256, sum[:])
	if err != nil {
		t.Fatalf("FromSum: %v", err)
	}

	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	want := cid.NewCidV1(cid.Raw, mh)
	if got != want {
		t.Fatalf("cid mismatch: got %s want %s", got, want)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	sum := bytes.Repeat([]byte{0xab}, 64)
	id, err := FromSum(multihash.SHA2_512, sum)
	if err != nil {
		t.Fatalf("FromSum: %v", err)
	}

	parsed, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	code, got, err := Decode(parsed)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if code != multihash.SHA2_512 {
		t.Fatalf("code: got 0x%x want 0x%x", code, multihash.SHA2_512)
	}
	if !bytes.Equal(got, sum) {
		t.Fatalf("digest bytes mismatch")
	}
}

func TestRejects(t *testing.T) {
	if _, err := FromSum(multihash.SHA2_256, nil); err == nil {
		t.Fatalf("expected error for empty digest")
	}
	if _, _, err := Decode(cid.Undef); err == nil {
		t.Fatalf("expected error for undefined cid")
	}
	if _, err := Parse("not-a-cid"); err == nil {
		t.Fatalf("expected parse error")
	}

	mh, err := multihash.Sum([]byte("x"), multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	if _, _, err := Decode(cid.NewCidV1(cid.DagCBOR, mh)); err == nil {
		t.Fatalf("expected error for non-raw codec")
	}
}
