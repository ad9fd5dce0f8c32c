// Package cidutil frames digest bytes as multihashes and CIDv1 identifiers.
//
// The codec is always "raw": a CID names the exact bytes that were digested.
// The multihash function code records which digest algorithm produced the sum.
package cidutil

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// FromSum returns a CIDv1 (raw codec) wrapping an already computed digest.
func FromSum(code uint64, sum []byte) (cid.Cid, error) {
	if len(sum) == 0 {
		return cid.Undef, errors.New("cidutil: empty digest")
	}
	mh, err := multihash.Encode(sum, code)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Decode splits a CID into its multihash function code and digest bytes.
func Decode(id cid.Cid) (code uint64, sum []byte, err error) {
	if !id.Defined() {
		return 0, nil, errors.New("cidutil: undefined cid")
	}
	if id.Type() != cid.Raw {
		return 0, nil, fmt.Errorf("cidutil: unexpected codec 0x%x", id.Type())
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return 0, nil, err
	}
	return dec.Code, dec.Digest, nil
}

// Parse decodes a CID string.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, errors.New("cidutil: undefined cid")
	}
	return id, nil
}
