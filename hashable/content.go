package hashable

import (
	"io"
	"os"
	"sync"

	"xdao.co/signet/digest"
)

// Bytes is in-memory content hashed as-is.
type Bytes struct {
	Holder
	mu   sync.Mutex
	data []byte
}

// NewBytes copies b.
func NewBytes(b []byte) *Bytes {
	return &Bytes{data: cloneBytes(b)}
}

// Data returns a copy of the content.
func (b *Bytes) Data() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneBytes(b.data)
}

// SetData replaces the content and drops the digest.
func (b *Bytes) SetData(data []byte) {
	b.mu.Lock()
	b.data = cloneBytes(data)
	b.mu.Unlock()
	b.Invalidate()
}

func (b *Bytes) HashableData() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, digest.NewError(digest.KindNullData, "SIG-HASH-010", "no content")
	}
	return cloneBytes(b.data), nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

// String is text content hashed as its UTF-8 bytes.
type String struct {
	Holder
	mu sync.Mutex
	s  string
}

func NewString(s string) *String { return &String{s: s} }

func (s *String) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

// SetValue replaces the text and drops the digest.
func (s *String) SetValue(v string) {
	s.mu.Lock()
	s.s = v
	s.mu.Unlock()
	s.Invalidate()
}

// HashableData never returns nil, so the empty string is valid content.
func (s *String) HashableData() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte{}, s.s...), nil
}

// Stream hashes everything readable from a seekable source. The source is
// rewound before every pass, so the same Stream can be computed and verified
// repeatedly.
type Stream struct {
	Holder
	mu sync.Mutex
	r  io.ReadSeeker
}

func NewStream(r io.ReadSeeker) *Stream { return &Stream{r: r} }

// SetSource replaces the source and drops the digest.
func (s *Stream) SetSource(r io.ReadSeeker) {
	s.mu.Lock()
	s.r = r
	s.mu.Unlock()
	s.Invalidate()
}

// OpenHashable rewinds the source. Closing the returned reader does not close
// the source.
func (s *Stream) OpenHashable() (io.ReadCloser, error) {
	s.mu.Lock()
	r := s.r
	s.mu.Unlock()
	if r == nil {
		return nil, digest.NewError(digest.KindNullData, "SIG-HASH-011", "no stream")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, digest.WrapError(digest.KindInternal, "SIG-HASH-012", "rewind stream", err)
	}
	return io.NopCloser(r), nil
}

func (s *Stream) HashableData() ([]byte, error) {
	rc, err := s.OpenHashable()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, digest.WrapError(digest.KindInternal, "SIG-HASH-013", "read stream", err)
	}
	return data, nil
}

// File hashes the contents of a file, streamed from disk on every pass.
type File struct {
	Holder
	mu   sync.Mutex
	path string
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

// SetPath points at another file and drops the digest.
func (f *File) SetPath(path string) {
	f.mu.Lock()
	f.path = path
	f.mu.Unlock()
	f.Invalidate()
}

func (f *File) OpenHashable() (io.ReadCloser, error) {
	path := f.Path()
	if path == "" {
		return nil, digest.NewError(digest.KindNullData, "SIG-HASH-014", "no file path")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, digest.WrapError(digest.KindInternal, "SIG-HASH-015", "open file", err)
	}
	return file, nil
}

func (f *File) HashableData() ([]byte, error) {
	path := f.Path()
	if path == "" {
		return nil, digest.NewError(digest.KindNullData, "SIG-HASH-014", "no file path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, digest.WrapError(digest.KindInternal, "SIG-HASH-016", "read file", err)
	}
	return b, nil
}

var (
	_ Object         = (*Bytes)(nil)
	_ Object         = (*String)(nil)
	_ Object         = (*Stream)(nil)
	_ Object         = (*File)(nil)
	_ StreamHashable = (*Stream)(nil)
	_ StreamHashable = (*File)(nil)
)
