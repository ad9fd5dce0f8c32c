// Package bundle moves CAS objects between stores as a deterministic tar file.
//
// Layout, in this order:
//
//	index.json     optional: per-block size and provider, seal links, labels
//	blocks/<cid>   raw object bytes, sorted by CID string
//
// Blocks are re-digested with the provider their CID records on export and
// again on import, so a bundle cannot carry bytes under the wrong name. The
// index is informational, but a bundle whose index names a block it does not
// carry is rejected.
package bundle

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/digest"
	"xdao.co/signet/seal"
	"xdao.co/signet/storage"
)

// FormatVersion is the index schema version written by Export.
const FormatVersion = 2

const (
	indexName   = "index.json"
	blockPrefix = "blocks/"
)

// All entries carry the Unix epoch so identical inputs give identical bytes.
var entryTime = time.Unix(0, 0).UTC()

type ExportOptions struct {
	// Labels are free-form names for exported objects, written to the index.
	Labels       map[string]cid.Cid
	IncludeIndex bool
	// FollowSeals also exports the content named by every seal record among
	// the requested objects, so the receiver can open them.
	FollowSeals bool
}

// Index is the decoded index.json.
type Index struct {
	Version int        `json:"version"`
	Blocks  []Block    `json:"blocks"`
	Seals   []SealLink `json:"seals,omitempty"`
	Labels  []Label    `json:"labels,omitempty"`
}

type Block struct {
	CID      string `json:"cid"`
	Size     int    `json:"size"`
	Provider string `json:"provider"`
}

// SealLink ties a seal record to the content it seals.
type SealLink struct {
	Record  string `json:"record"`
	Content string `json:"content"`
}

type Label struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// collection is the verified set of objects one export writes.
type collection struct {
	cas   storage.CAS
	data  map[cid.Cid][]byte
	seals []SealLink
}

func (c *collection) add(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	if b, ok := c.data[id]; ok {
		return b, nil
	}
	b, err := c.cas.Get(id)
	if err != nil {
		return nil, fmt.Errorf("bundle: %s: %w", id, err)
	}
	if err := storage.CheckContent(id, b); err != nil {
		return nil, fmt.Errorf("bundle: %s: %w", id, err)
	}
	c.data[id] = b
	return b, nil
}

func (c *collection) sorted() []cid.Cid {
	ids := make([]cid.Cid, 0, len(c.data))
	for id := range c.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Export writes the objects ids (and, with FollowSeals, their sealed
// content) to w. Duplicate and reordered ids give the same bytes.
func Export(w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}
	c := &collection{cas: cas, data: make(map[cid.Cid][]byte, len(ids))}
	for _, id := range ids {
		b, err := c.add(id)
		if err != nil {
			return err
		}
		if !opts.FollowSeals {
			continue
		}
		if content, ok := sealedContent(b); ok {
			if _, err := c.add(content); err != nil {
				return fmt.Errorf("bundle: content of seal %s: %w", id, err)
			}
			c.seals = append(c.seals, SealLink{Record: id.String(), Content: content.String()})
		}
	}
	order := c.sorted()

	tw := tar.NewWriter(w)
	if opts.IncludeIndex {
		idx, err := c.index(order, opts.Labels)
		if err != nil {
			return err
		}
		b, err := json.Marshal(idx)
		if err != nil {
			return err
		}
		if err := writeEntry(tw, indexName, append(b, '\n')); err != nil {
			return err
		}
	}
	for _, id := range order {
		if err := writeEntry(tw, blockPrefix+id.String(), c.data[id]); err != nil {
			return err
		}
	}
	return tw.Close()
}

func (c *collection) index(order []cid.Cid, labels map[string]cid.Cid) (Index, error) {
	idx := Index{Version: FormatVersion, Blocks: make([]Block, 0, len(order))}
	for _, id := range order {
		d, err := digest.FromCID(id)
		if err != nil {
			return idx, err
		}
		idx.Blocks = append(idx.Blocks, Block{CID: id.String(), Size: len(c.data[id]), Provider: d.Provider().String()})
	}
	seen := map[SealLink]bool{}
	for _, s := range c.seals {
		if !seen[s] {
			seen[s] = true
			idx.Seals = append(idx.Seals, s)
		}
	}
	sort.Slice(idx.Seals, func(i, j int) bool { return idx.Seals[i].Record < idx.Seals[j].Record })
	for name, id := range labels {
		if name == "" {
			return idx, errors.New("bundle: empty label")
		}
		if !id.Defined() {
			return idx, storage.ErrInvalidCID
		}
		idx.Labels = append(idx.Labels, Label{Name: name, CID: id.String()})
	}
	sort.Slice(idx.Labels, func(i, j int) bool { return idx.Labels[i].Name < idx.Labels[j].Name })
	return idx, nil
}

// sealedContent returns the content CID when b is a seal record.
func sealedContent(b []byte) (cid.Cid, bool) {
	if len(b) == 0 || b[0] != '{' {
		return cid.Undef, false
	}
	var rec seal.Record
	if err := json.Unmarshal(b, &rec); err != nil || rec.Digest == nil || rec.Content == "" {
		return cid.Undef, false
	}
	id, err := rec.ContentID()
	return id, err == nil
}

type ImportOptions struct {
	// IgnoreUnknown skips entries that are neither the index nor blocks.
	// By default they fail the import.
	IgnoreUnknown bool
	// DryRun verifies the bundle without writing; the CAS may be nil.
	DryRun bool
}

// Import stores every block of the bundle in cas and returns their CIDs in
// bundle order. Unknown entries are an error.
func Import(r io.Reader, cas storage.CAS) ([]cid.Cid, error) {
	return ImportWithOptions(r, cas, ImportOptions{})
}

// ImportWithOptions is Import with options. The destination has to name
// objects with the bundle's providers: a Put that answers with another CID
// fails with storage.ErrCIDMismatch.
func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) ([]cid.Cid, error) {
	if cas == nil && !opts.DryRun {
		return nil, errors.New("bundle: nil CAS")
	}
	var (
		tr       = tar.NewReader(r)
		imported []cid.Cid
		seen     = map[cid.Cid]bool{}
		idx      *Index
	)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, err
		}
		name := entryPath(h.Name)
		switch {
		case name == "":
			return imported, fmt.Errorf("bundle: invalid entry path %q", h.Name)
		case h.Typeflag != tar.TypeReg:
			if !opts.IgnoreUnknown {
				return imported, fmt.Errorf("bundle: entry %s has type %q", name, h.Typeflag)
			}
		case name == indexName:
			if idx, err = readIndex(tr); err != nil {
				return imported, err
			}
		case strings.HasPrefix(name, blockPrefix):
			id, err := importBlock(tr, strings.TrimPrefix(name, blockPrefix), cas, opts.DryRun)
			if err != nil {
				return imported, err
			}
			if seen[id] {
				return imported, fmt.Errorf("bundle: duplicate block %s", id)
			}
			seen[id] = true
			imported = append(imported, id)
		case !opts.IgnoreUnknown:
			return imported, fmt.Errorf("bundle: unknown entry %s", name)
		}
	}
	if idx != nil {
		for _, b := range idx.Blocks {
			id, err := cid.Decode(b.CID)
			if err != nil || !seen[id] {
				return imported, fmt.Errorf("bundle: index names missing block %s", b.CID)
			}
		}
	}
	return imported, nil
}

func readIndex(r io.Reader) (*Index, error) {
	var idx Index
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("bundle: index: %w", err)
	}
	if idx.Version < 1 || idx.Version > FormatVersion {
		return nil, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
	}
	return &idx, nil
}

func importBlock(r io.Reader, name string, cas storage.CAS, dryRun bool) (cid.Cid, error) {
	id, err := cid.Decode(name)
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return cid.Undef, err
	}
	if err := storage.CheckContent(id, payload); err != nil {
		return cid.Undef, err
	}
	if dryRun {
		return id, nil
	}
	got, err := cas.Put(payload)
	if err != nil {
		return cid.Undef, err
	}
	if got != id {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	err := tw.WriteHeader(&tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  entryTime,
		Typeflag: tar.TypeReg,
	})
	if err == nil {
		_, err = tw.Write(content)
	}
	return err
}

// entryPath normalizes a tar entry name and returns "" for names that are
// empty or try to leave the bundle.
func entryPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = strings.TrimPrefix(strings.TrimPrefix(name, "./"), "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
