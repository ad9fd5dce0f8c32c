package bundle_test

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/digest"
	"xdao.co/signet/hashable"
	"xdao.co/signet/seal"
	"xdao.co/signet/storage"
	"xdao.co/signet/storage/bundle"
	"xdao.co/signet/storage/localfs"
)

func newCAS(t *testing.T, p digest.Provider) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir(), p)
	if err != nil {
		t.Fatal(err)
	}
	return cas
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	cas := newCAS(t, digest.SHA512)

	id1, err := cas.Put([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := cas.Put([]byte("world"))
	if err != nil {
		t.Fatal(err)
	}

	opts := bundle.ExportOptions{IncludeIndex: true, Labels: map[string]cid.Cid{"greeting": id1}}
	var outA bytes.Buffer
	if err := bundle.Export(&outA, cas, []cid.Cid{id2, id1}, opts); err != nil {
		t.Fatal(err)
	}
	var outB bytes.Buffer
	if err := bundle.Export(&outB, cas, []cid.Cid{id1, id2, id1}, opts); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	src := newCAS(t, digest.SHA256)

	payload := []byte("payload")
	id, err := src.Put(payload)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, []cid.Cid{id}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	dst := newCAS(t, digest.SHA256)
	imported, err := bundle.Import(bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(imported) != 1 || imported[0] != id {
		t.Fatalf("imported %v", imported)
	}

	got, err := dst.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestBundle_FollowSeals(t *testing.T) {
	src := newCAS(t, digest.SHA3_256)
	sealer := &seal.Sealer{CAS: src, Provider: digest.SHA3_256}
	recordID, _, err := sealer.Seal(hashable.NewString("sealed content"))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, []cid.Cid{recordID}, bundle.ExportOptions{FollowSeals: true}); err != nil {
		t.Fatal(err)
	}

	dst := newCAS(t, digest.SHA3_256)
	imported, err := bundle.Import(bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(imported) != 2 {
		t.Fatalf("expected record and content, got %v", imported)
	}
	got, _, err := (&seal.Sealer{CAS: dst}).Open(recordID, nil)
	if err != nil {
		t.Fatalf("Open after import: %v", err)
	}
	if string(got) != "sealed content" {
		t.Fatalf("content: %q", got)
	}
}

func TestBundle_ImportRejectsProviderMismatch(t *testing.T) {
	src := newCAS(t, digest.SHA512)
	id, err := src.Put([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, []cid.Cid{id}, bundle.ExportOptions{}); err != nil {
		t.Fatal(err)
	}
	dst := newCAS(t, digest.SHA256)
	if _, err := bundle.Import(bytes.NewReader(buf.Bytes()), dst); err != storage.ErrCIDMismatch {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := []byte("good")
	goodCID, err := storage.ContentID(digest.SHA256, good)
	if err != nil {
		t.Fatal(err)
	}
	otherCID, err := storage.ContentID(digest.SHA256, []byte("other"))
	if err != nil {
		t.Fatal(err)
	}
	if goodCID == otherCID {
		t.Fatal("expected different CIDs")
	}

	// Name says "otherCID" but bytes are "good" => computed CID mismatch.
	bundleBytes := makeDeterministicTar(t, "blocks/"+otherCID.String(), good)

	dst := newCAS(t, digest.SHA256)
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), dst); err != storage.ErrCIDMismatch {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestBundle_ImportRejectsUnknownEntries(t *testing.T) {
	bundleBytes := makeDeterministicTar(t, "../escape", []byte("x"))
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), newCAS(t, digest.SHA256)); err == nil {
		t.Fatalf("expected error for path traversal")
	}

	bundleBytes = makeDeterministicTar(t, "notes.txt", []byte("x"))
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), newCAS(t, digest.SHA256)); err == nil {
		t.Fatalf("expected error for unknown entry")
	}
	imported, err := bundle.ImportWithOptions(bytes.NewReader(bundleBytes), newCAS(t, digest.SHA256), bundle.ImportOptions{IgnoreUnknown: true})
	if err != nil || len(imported) != 0 {
		t.Fatalf("IgnoreUnknown: %v %v", imported, err)
	}
}

func TestBundle_IndexAndDryRun(t *testing.T) {
	src := newCAS(t, digest.SHA384)
	sealer := &seal.Sealer{CAS: src, Provider: digest.SHA384}
	recordID, _, err := sealer.Seal(hashable.NewString("indexed"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	opts := bundle.ExportOptions{IncludeIndex: true, FollowSeals: true, Labels: map[string]cid.Cid{"record": recordID}}
	if err := bundle.Export(&buf, src, []cid.Cid{recordID}, opts); err != nil {
		t.Fatal(err)
	}

	tr := tar.NewReader(bytes.NewReader(buf.Bytes()))
	h, err := tr.Next()
	if err != nil || h.Name != "index.json" {
		t.Fatalf("first entry: %v %v", h, err)
	}
	var idx bundle.Index
	if err := json.NewDecoder(tr).Decode(&idx); err != nil {
		t.Fatal(err)
	}
	if idx.Version != bundle.FormatVersion || len(idx.Blocks) != 2 || len(idx.Seals) != 1 || idx.Seals[0].Record != recordID.String() {
		t.Fatalf("index: %+v", idx)
	}
	for _, b := range idx.Blocks {
		if b.Provider != "sha384" {
			t.Fatalf("block provider: %+v", b)
		}
	}

	ids, err := bundle.ImportWithOptions(bytes.NewReader(buf.Bytes()), nil, bundle.ImportOptions{DryRun: true})
	if err != nil || len(ids) != 2 {
		t.Fatalf("dry run: %v %v", ids, err)
	}
}

func TestBundle_ImportRejectsIndexWithoutBlock(t *testing.T) {
	missing, err := storage.ContentID(digest.SHA256, []byte("not in bundle"))
	if err != nil {
		t.Fatal(err)
	}
	index := []byte(`{"version":2,"blocks":[{"cid":"` + missing.String() + `","size":13,"provider":"sha256"}]}`)
	bundleBytes := makeDeterministicTar(t, "index.json", index)
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), newCAS(t, digest.SHA256)); err == nil {
		t.Fatalf("expected error for index naming a missing block")
	}

	bundleBytes = makeDeterministicTar(t, "index.json", []byte(`{"version":99,"blocks":[]}`))
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), newCAS(t, digest.SHA256)); err == nil {
		t.Fatalf("expected error for unsupported index version")
	}
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
