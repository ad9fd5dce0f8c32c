// Package localfs stores objects as read-only files under a directory.
package localfs

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/digest"
	"xdao.co/signet/storage"
)

// CAS keeps one file per object at <root>/<shard>/<cid>.
//
// Put names objects with the store's provider. Get accepts a CID of any
// supported provider, since a directory may be shared by stores configured
// differently, and re-digests what it reads.
type CAS struct {
	root     string
	provider digest.Provider
}

var (
	_ storage.CAS    = (*CAS)(nil)
	_ storage.Lister = (*CAS)(nil)
)

// New opens (and creates) a store rooted at root. A zero provider selects
// storage.DefaultProvider.
func New(root string, p digest.Provider) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	p = storage.ProviderOrDefault(p)
	if !p.Valid() {
		return nil, fmt.Errorf("localfs: unsupported digest provider %s", p)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root, provider: p}, nil
}

func (c *CAS) Provider() digest.Provider { return c.provider }

func (c *CAS) Root() string { return c.root }

// Put writes data through a temporary file in the shard directory and links
// it into place, so readers never observe a partial object.
func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id, err := storage.ContentID(c.provider, data)
	if err != nil {
		return cid.Undef, err
	}
	path := c.pathFor(id)
	if _, err := os.Lstat(path); err == nil {
		return id, c.sameAsStored(id, data)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cid.Undef, err
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return cid.Undef, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Close(); err != nil {
		return cid.Undef, err
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		return cid.Undef, err
	}
	// Link fails if a concurrent writer got there first; the object is then
	// compared instead of replaced.
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return id, c.sameAsStored(id, data)
		}
		return cid.Undef, err
	}
	return id, nil
}

// sameAsStored reports ErrImmutable when the file at id is unreadable,
// damaged or different from data.
func (c *CAS) sameAsStored(id cid.Cid, data []byte) error {
	existing, err := c.Get(id)
	if err != nil || !bytes.Equal(existing, data) {
		return storage.ErrImmutable
	}
	return nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.pathFor(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := storage.CheckContent(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	fi, err := os.Stat(c.pathFor(id))
	return err == nil && fi.Mode().IsRegular()
}

// List returns the CIDs of every object file under the root. Stray files
// whose names do not parse as CIDs are skipped.
func (c *CAS) List() ([]cid.Cid, error) {
	var ids []cid.Cid
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		id, err := cid.Decode(d.Name())
		if err != nil || c.pathFor(id) != path {
			return nil
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// pathFor shards by the last two characters of the CID string; the leading
// characters are the multibase and version prefix shared by every object.
func (c *CAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[len(s)-2:], s)
}
