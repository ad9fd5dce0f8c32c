// Package seal stores hashable content in a CAS next to a digest record, so the
// content can later be fetched and re-verified by CID alone.
//
// A sealed object is two CAS entries: the content bytes, and a JSON record
// holding the content CID and the (optionally signed) digest of those bytes.
// The record CID is what callers keep.
package seal

import (
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/digest"
	"xdao.co/signet/hashable"
	"xdao.co/signet/internal/log"
	"xdao.co/signet/storage"
)

// Record is the JSON document stored for every sealed object.
type Record struct {
	Content string         `json:"content"`
	Digest  *digest.Digest `json:"digest"`
	// Signer is the serial number of the signing certificate, informational only.
	Signer string `json:"signer,omitempty"`
}

// ContentID parses Record.Content.
func (r *Record) ContentID() (cid.Cid, error) {
	id, err := cid.Decode(r.Content)
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	return id, nil
}

// Serialer is implemented by signers that can name their certificate.
type Serialer interface {
	SerialNumber() string
}

// Sealer writes sealed objects to CAS.
type Sealer struct {
	CAS storage.CAS
	// Provider digests the content; zero means storage.DefaultProvider.
	Provider digest.Provider
	// Signer signs the digest when it holds a private key. Optional.
	Signer digest.Signer
	Logger log.Logger
}

func (s *Sealer) logger() log.Logger {
	if s.Logger == nil {
		return log.NewNopLogger()
	}
	return s.Logger
}

// Seal digests h, stores its bytes and the digest record, and returns the
// record CID. When h is a hashable.Object the digest is also stored on it.
func (s *Sealer) Seal(h hashable.Hashable) (cid.Cid, *Record, error) {
	if s == nil || s.CAS == nil {
		return cid.Undef, nil, digest.NewError(digest.KindInternal, "SIG-SEAL-001", "sealer has no store")
	}
	if h == nil {
		return cid.Undef, nil, digest.NewError(digest.KindNullData, "SIG-SEAL-002", "nothing to seal")
	}
	data, err := h.HashableData()
	if err != nil {
		return cid.Undef, nil, err
	}
	p := storage.ProviderOrDefault(s.Provider)
	d, err := digest.Compute(data, p, s.Signer)
	if err != nil {
		return cid.Undef, nil, err
	}
	if o, ok := h.(hashable.Object); ok {
		o.SetComputedDigest(d)
	}

	contentID, err := s.CAS.Put(data)
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("seal: store content: %w", err)
	}
	rec := &Record{Content: contentID.String(), Digest: d}
	if sn, ok := s.Signer.(Serialer); ok && d.IsSigned() {
		rec.Signer = sn.SerialNumber()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return cid.Undef, nil, digest.WrapError(digest.KindEncoding, "SIG-SEAL-003", "encode record", err)
	}
	recordID, err := s.CAS.Put(b)
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("seal: store record: %w", err)
	}
	s.logger().Info("sealed", "record", recordID, "content", contentID, "provider", p, "signed", d.IsSigned())
	return recordID, rec, nil
}

// LoadRecord fetches and decodes a record without touching the content.
func (s *Sealer) LoadRecord(recordID cid.Cid) (*Record, error) {
	if s == nil || s.CAS == nil {
		return nil, digest.NewError(digest.KindInternal, "SIG-SEAL-001", "sealer has no store")
	}
	b, err := s.CAS.Get(recordID)
	if err != nil {
		return nil, fmt.Errorf("seal: load record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, digest.WrapError(digest.KindEncoding, "SIG-SEAL-004", "decode record", err)
	}
	if rec.Digest == nil {
		return nil, digest.NewError(digest.KindEncoding, "SIG-SEAL-005", "record has no digest")
	}
	return &rec, nil
}

// Open fetches a sealed object and verifies its content against the recorded
// digest. Pass the signer's identity (public key suffices) to check the
// signature; a signed record opened without one fails verification. A failed
// verification is reported as a KindCrypto error carrying the reason.
func (s *Sealer) Open(recordID cid.Cid, signer digest.Signer) ([]byte, *Record, error) {
	rec, err := s.LoadRecord(recordID)
	if err != nil {
		return nil, nil, err
	}
	contentID, err := rec.ContentID()
	if err != nil {
		return nil, nil, err
	}
	data, err := s.CAS.Get(contentID)
	if err != nil {
		return nil, nil, fmt.Errorf("seal: load content: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	if ok, reason := rec.Digest.Verify(data, signer); !ok {
		s.logger().Error("verification failed", "record", recordID, "reason", reason)
		return nil, rec, digest.NewError(digest.KindCrypto, "SIG-SEAL-010", reason)
	}
	s.logger().Debug("opened", "record", recordID, "bytes", len(data))
	return data, rec, nil
}
