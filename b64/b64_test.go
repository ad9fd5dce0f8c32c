package b64

import (
	"bytes"
	"strings"
	"testing"
)

var samples = [][]byte{
	{240, 255},
	{0, 255},
	{32, 231, 55},
	{255, 240, 62, 0},
	{255, 255, 0, 0, 234},
	{7, 8, 9, 123, 0, 0},
	{74, 52, 51, 254, 240, 62, 0},
	{255, 240, 62, 0, 0, 45, 0, 0},
	{0xfb, 0xff, 0xbf},
}

func TestRoundTripAllVariants(t *testing.T) {
	for _, sample := range samples {
		for _, urlSafe := range []bool{false, true} {
			for _, padding := range []bool{false, true} {
				text := Encode(sample, urlSafe, padding)
				got, ok := Decode(text, false)
				if !ok {
					t.Fatalf("Decode(%q) failed (urlSafe=%v padding=%v)", text, urlSafe, padding)
				}
				if !bytes.Equal(got, sample) {
					t.Fatalf("round trip mismatch for %v: got %v", sample, got)
				}
			}
		}
	}
}

func TestEnforcedPadding(t *testing.T) {
	for _, sample := range samples {
		padded := Encode(sample, false, true)
		if got, ok := Decode(padded, true); !ok || !bytes.Equal(got, sample) {
			t.Fatalf("padded text %q should decode with enforced padding", padded)
		}

		unpadded := Encode(sample, true, false)
		_, ok := Decode(unpadded, true)
		if strings.HasSuffix(padded, "=") && ok {
			t.Fatalf("unpadded text %q should be rejected when padding is enforced", unpadded)
		}
		if !strings.HasSuffix(padded, "=") && !ok {
			t.Fatalf("text %q needs no padding and should decode", unpadded)
		}
	}
}

func TestAlphabets(t *testing.T) {
	b := []byte{0xfb, 0xff, 0xbf}
	if got := Encode(b, false, true); got != "+/+/" {
		t.Fatalf("standard alphabet: got %q", got)
	}
	if got := Encode(b, true, true); got != "-_-_" {
		t.Fatalf("url alphabet: got %q", got)
	}
	mixed, ok := Decode("-/+_", true)
	if !ok || !bytes.Equal(mixed, b) {
		t.Fatalf("mixed alphabets should decode, got %v ok=%v", mixed, ok)
	}
	if got := EncodeStd([]byte{1}); got != "AQ==" {
		t.Fatalf("EncodeStd: got %q", got)
	}
}

func TestMalformed(t *testing.T) {
	for _, text := range []string{"", "   ", "a", "abc$", "####", "AQ=A"} {
		if b, ok := Decode(text, false); ok {
			t.Fatalf("Decode(%q) = %v, want failure", text, b)
		}
	}
}
