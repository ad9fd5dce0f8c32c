// Package ipfs stores objects as raw blocks in a local IPFS repository by
// running the Kubo "ipfs" command. It works offline against the repo and
// never trusts the command's output: every CID and every block read back is
// checked against the bytes.
package ipfs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/signet/digest"
	"xdao.co/signet/storage"
)

// CAS names blocks CIDv1 raw with the multihash of its provider, the same
// CIDs storage.ContentID produces.
type CAS struct {
	bin      string
	env      []string
	provider digest.Provider
	timeout  time.Duration
	pin      bool
}

var (
	_ storage.CAS    = (*CAS)(nil)
	_ storage.Lister = (*CAS)(nil)
)

type Options struct {
	// Bin defaults to "ipfs" on PATH.
	Bin string
	// Env replaces the command environment when non-nil (e.g. to set IPFS_PATH).
	Env []string
	// Provider selects the block multihash; zero means storage.DefaultProvider.
	Provider digest.Provider
	// Timeout bounds each command when non-zero.
	Timeout time.Duration
	// Pin keeps stored blocks from being garbage collected by the repo.
	Pin bool
}

// Kubo multihash names per provider.
var mhTypes = map[digest.Provider]string{
	digest.SHA256:   "sha2-256",
	digest.SHA384:   "sha2-384",
	digest.SHA512:   "sha2-512",
	digest.SHA3_256: "sha3-256",
	digest.SHA3_512: "sha3-512",
}

func New(opts Options) (*CAS, error) {
	p := storage.ProviderOrDefault(opts.Provider)
	if _, ok := mhTypes[p]; !ok {
		return nil, fmt.Errorf("ipfs: unsupported digest provider %s", p)
	}
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env, provider: p, timeout: opts.Timeout, pin: opts.Pin}, nil
}

func (c *CAS) Provider() digest.Provider { return c.provider }

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	want, err := storage.ContentID(c.provider, data)
	if err != nil {
		return cid.Undef, err
	}
	size, err := digest.ByteLength(c.provider)
	if err != nil {
		return cid.Undef, err
	}
	if data == nil {
		data = []byte{}
	}
	out, err := c.run(data, "block", "put",
		"--quiet",
		"--cid-version=1",
		"--format=raw",
		"--mhtype="+mhTypes[c.provider],
		fmt.Sprintf("--mhlen=%d", size),
		fmt.Sprintf("--pin=%t", c.pin),
		"/dev/stdin",
	)
	if err != nil {
		return cid.Undef, err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: block put printed %q: %w", bytes.TrimSpace(out), err)
	}
	if got != want {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return want, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := c.run(nil, "block", "get", id.String())
	if err != nil {
		return nil, err
	}
	if err := storage.CheckContent(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.run(nil, "block", "stat", id.String())
	return err == nil
}

// List returns the raw blocks of the repo that carry a supported digest.
// Other blocks (dag-pb, unsupported hashes) are not signet objects and are
// left out.
func (c *CAS) List() ([]cid.Cid, error) {
	out, err := c.run(nil, "refs", "local")
	if err != nil {
		return nil, err
	}
	var ids []cid.Cid
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		id, err := cid.Decode(strings.TrimSpace(sc.Text()))
		if err != nil || id.Type() != cid.Raw {
			continue
		}
		if _, err := digest.FromCID(id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}

// commandError is a failed ipfs invocation with its trimmed stderr.
type commandError struct {
	args   []string
	stderr string
	err    error
}

func (e *commandError) Error() string {
	if e.stderr != "" {
		return fmt.Sprintf("ipfs %s: %s", strings.Join(e.args[:2], " "), e.stderr)
	}
	return fmt.Sprintf("ipfs %s: %v", strings.Join(e.args[:2], " "), e.err)
}

func (e *commandError) Unwrap() error { return e.err }

// notFound matches the messages Kubo prints for absent blocks.
func (e *commandError) notFound() bool {
	s := strings.ToLower(e.stderr)
	return strings.Contains(s, "not found") || strings.Contains(s, "could not find")
}

// run executes one ipfs command. A command that reports a missing block
// yields storage.ErrNotFound.
func (c *CAS) run(stdin []byte, args ...string) ([]byte, error) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Env = c.env
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	ce := &commandError{args: args, stderr: strings.TrimSpace(stderr.String()), err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ce.notFound() {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, ce.stderr)
	}
	return nil, ce
}
