package digest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	godigest "github.com/opencontainers/go-digest"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"xdao.co/signet/b64"
	"xdao.co/signet/cidutil"
)

// Base64 renders the digest bytes as base64 text.
func (d *Digest) Base64(urlSafe, padding bool) string {
	return b64.Encode(d.bytes, urlSafe, padding)
}

// Hex renders the digest bytes as lowercase hex.
func (d *Digest) Hex() string { return hex.EncodeToString(d.bytes) }

// String returns "<provider>:<hex>".
func (d *Digest) String() string {
	if d == nil {
		return "<nil>"
	}
	return d.provider.String() + ":" + d.Hex()
}

// CID returns the CIDv1 (raw codec) naming the content this digest was computed
// over. The multihash function code follows the provider.
func (d *Digest) CID() (cid.Cid, error) {
	code, err := d.provider.MultihashCode()
	if err != nil {
		return cid.Undef, err
	}
	return cidutil.FromSum(code, d.bytes)
}

// FromCID rehydrates the digest embedded in a raw-codec CID.
func FromCID(id cid.Cid) (*Digest, error) {
	code, sum, err := cidutil.Decode(id)
	if err != nil {
		return nil, WrapError(KindEncoding, "SIG-ENC-001", "decode cid", err)
	}
	p, err := ProviderFromMultihash(code)
	if err != nil {
		return nil, err
	}
	return FromPrecomputedBytes(sum, p, nil, nil)
}

// OCI returns the digest in OCI "algorithm:encoded" form. Only the SHA-2
// providers have registered OCI algorithms.
func (d *Digest) OCI() (godigest.Digest, error) {
	info, err := d.provider.info()
	if err != nil {
		return "", err
	}
	if info.oci == "" {
		return "", NewError(KindUnsupportedProvider, "SIG-ENC-002",
			fmt.Sprintf("%s has no OCI digest algorithm", d.provider))
	}
	return godigest.NewDigestFromEncoded(info.oci, d.Hex()), nil
}

// FromOCI parses an OCI digest string.
func FromOCI(od godigest.Digest) (*Digest, error) {
	if err := od.Validate(); err != nil {
		return nil, WrapError(KindEncoding, "SIG-ENC-003", "invalid OCI digest", err)
	}
	var p Provider
	for _, cand := range Providers() {
		if providerTable[cand].oci == od.Algorithm() {
			p = cand
			break
		}
	}
	if p == 0 {
		return nil, NewError(KindUnsupportedProvider, "SIG-ENC-004",
			fmt.Sprintf("unsupported OCI algorithm %q", od.Algorithm()))
	}
	b, err := hex.DecodeString(od.Encoded())
	if err != nil {
		return nil, WrapError(KindEncoding, "SIG-ENC-005", "decode OCI digest", err)
	}
	return FromPrecomputedBytes(b, p, nil, nil)
}

type digestJSON struct {
	Provider         string     `json:"provider"`
	Bytes            string     `json:"bytes"`
	Signature        string     `json:"signature,omitempty"`
	Signer           string     `json:"signer,omitempty"`
	ComputedAt       *time.Time `json:"computed_at,omitempty"`
	SourceByteLength *int64     `json:"source_byte_length,omitempty"`
}

func (d *Digest) MarshalJSON() ([]byte, error) {
	d.mu.Lock()
	out := digestJSON{
		Provider:         d.provider.String(),
		Bytes:            b64.EncodeStd(d.bytes),
		ComputedAt:       d.computedAt,
		SourceByteLength: d.sourceByteLength,
	}
	if len(d.signature) > 0 {
		out.Signature = b64.EncodeStd(d.signature)
		out.Signer = b64.EncodeStd(d.signerFingerprint)
	}
	d.mu.Unlock()
	return json.Marshal(out)
}

// UnmarshalJSON fills an empty Digest. The length check and write-once rules
// apply exactly as for FromPrecomputedBytes.
func (d *Digest) UnmarshalJSON(data []byte) error {
	var in digestJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return WrapError(KindEncoding, "SIG-ENC-010", "decode digest json", err)
	}
	p, err := ParseProvider(in.Provider)
	if err != nil {
		return err
	}
	parsed, err := FromBase64(in.Bytes, p, in.SourceByteLength, in.ComputedAt)
	if err != nil {
		return err
	}
	if in.Signature != "" {
		sig, ok := b64.Decode(in.Signature, false)
		if !ok {
			return NewError(KindEncoding, "SIG-ENC-011", "signature is not valid base64")
		}
		var signer []byte
		if in.Signer != "" {
			if signer, ok = b64.Decode(in.Signer, false); !ok {
				return NewError(KindEncoding, "SIG-ENC-012", "signer is not valid base64")
			}
		}
		if err := parsed.SetSignature(sig, signer); err != nil {
			return err
		}
	}
	return d.adopt(parsed)
}

// adopt moves the fields of a freshly decoded digest into d, which must be empty.
func (d *Digest) adopt(src *Digest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.provider != 0 || len(d.bytes) > 0 {
		return immutable("digest", "SIG-ENC-013")
	}
	d.provider = src.provider
	d.bytes = src.bytes
	d.signature = src.signature
	d.signerFingerprint = src.signerFingerprint
	d.computedAt = src.computedAt
	d.sourceByteLength = src.sourceByteLength
	return nil
}

// Protobuf wire field numbers of the binary form.
const (
	fieldProvider         protowire.Number = 1
	fieldBytes            protowire.Number = 2
	fieldSignature        protowire.Number = 3
	fieldSigner           protowire.Number = 4
	fieldComputedAt       protowire.Number = 5 // google.protobuf.Timestamp
	fieldSourceByteLength protowire.Number = 6
)

// MarshalBinary encodes the digest as a protobuf message.
func (d *Digest) MarshalBinary() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b []byte
	b = protowire.AppendTag(b, fieldProvider, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.provider))
	b = protowire.AppendTag(b, fieldBytes, protowire.BytesType)
	b = protowire.AppendBytes(b, d.bytes)
	if len(d.signature) > 0 {
		b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
		b = protowire.AppendBytes(b, d.signature)
		if len(d.signerFingerprint) > 0 {
			b = protowire.AppendTag(b, fieldSigner, protowire.BytesType)
			b = protowire.AppendBytes(b, d.signerFingerprint)
		}
	}
	if d.computedAt != nil {
		ts, err := proto.MarshalOptions{Deterministic: true}.Marshal(timestamppb.New(*d.computedAt))
		if err != nil {
			return nil, WrapError(KindInternal, "SIG-ENC-020", "encode computed_at", err)
		}
		b = protowire.AppendTag(b, fieldComputedAt, protowire.BytesType)
		b = protowire.AppendBytes(b, ts)
	}
	if d.sourceByteLength != nil {
		b = protowire.AppendTag(b, fieldSourceByteLength, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*d.sourceByteLength))
	}
	return b, nil
}

// UnmarshalBinary fills an empty Digest from its protobuf form. Unknown fields
// are skipped.
func (d *Digest) UnmarshalBinary(data []byte) error {
	var (
		p                Provider
		sum, sig, signer []byte
		computedAt       *time.Time
		sourceByteLength *int64
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError(n)
		}
		data = data[n:]
		switch {
		case num == fieldProvider && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError(n)
			}
			if v > 0xff {
				return NewError(KindUnsupportedProvider, "SIG-ENC-021", fmt.Sprintf("unsupported digest provider %d", v))
			}
			p = Provider(v)
			data = data[n:]
		case typ == protowire.BytesType && num >= fieldBytes && num <= fieldComputedAt:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return wireError(n)
			}
			data = data[n:]
			switch num {
			case fieldBytes:
				sum = v
			case fieldSignature:
				sig = v
			case fieldSigner:
				signer = v
			case fieldComputedAt:
				var ts timestamppb.Timestamp
				if err := proto.Unmarshal(v, &ts); err != nil {
					return WrapError(KindEncoding, "SIG-ENC-022", "decode computed_at", err)
				}
				t := ts.AsTime()
				computedAt = &t
			}
		case num == fieldSourceByteLength && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return wireError(n)
			}
			l := int64(v)
			sourceByteLength = &l
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError(n)
			}
			data = data[n:]
		}
	}
	parsed, err := FromPrecomputedBytes(sum, p, sourceByteLength, computedAt)
	if err != nil {
		return err
	}
	if len(sig) > 0 {
		if err := parsed.SetSignature(sig, signer); err != nil {
			return err
		}
	}
	return d.adopt(parsed)
}

func wireError(n int) error {
	return WrapError(KindEncoding, "SIG-ENC-023", "decode digest wire form", protowire.ParseError(n))
}
