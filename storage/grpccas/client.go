package grpccas

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/signet/digest"
	"xdao.co/signet/storage"
)

// Client is a storage.CAS served by a remote signet-casd.
//
// Nothing the server says is taken on trust: PutContext compares the
// returned CID with one computed locally and GetContext re-digests the bytes.
type Client struct {
	conn     *grpc.ClientConn
	rpc      CASClient
	provider digest.Provider

	// Timeout bounds each call made through the storage.CAS methods.
	Timeout time.Duration
}

var _ storage.CAS = (*Client)(nil)

type DialOptions struct {
	// Timeout bounds the initial dial when non-zero.
	Timeout time.Duration
	// MaxMsgBytes raises both send and receive limits when non-zero.
	MaxMsgBytes int
	// Provider must match the server's; zero means storage.DefaultProvider.
	Provider digest.Provider
}

// Dial connects to target without transport security; signet-casd is meant
// for loopback or an already protected network.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if n := opts.MaxMsgBytes; n > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(n), grpc.MaxCallSendMsgSize(n)))
	}
	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	conn, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpccas: dial %s: %w", target, err)
	}
	return NewClient(conn, opts.Provider), nil
}

// NewClient wraps an established connection.
func NewClient(conn *grpc.ClientConn, p digest.Provider) *Client {
	return &Client{conn: conn, rpc: NewCASClient(conn), provider: storage.ProviderOrDefault(p)}
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Put(data []byte) (cid.Cid, error) {
	ctx, cancel := c.callContext()
	defer cancel()
	return c.PutContext(ctx, data)
}

func (c *Client) Get(id cid.Cid) ([]byte, error) {
	ctx, cancel := c.callContext()
	defer cancel()
	return c.GetContext(ctx, id)
}

// Has reports false when the server cannot be asked.
func (c *Client) Has(id cid.Cid) bool {
	ctx, cancel := c.callContext()
	defer cancel()
	ok, err := c.HasContext(ctx, id)
	return err == nil && ok
}

func (c *Client) PutContext(ctx context.Context, data []byte) (cid.Cid, error) {
	want, err := storage.ContentID(c.provider, data)
	if err != nil {
		return cid.Undef, err
	}
	reply, err := c.rpc.Put(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return cid.Undef, fromStatus(err)
	}
	got, err := cid.Decode(reply.GetValue())
	if err != nil || !got.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	if got != want {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return got, nil
}

func (c *Client) GetContext(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	reply, err := c.rpc.Get(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, fromStatus(err)
	}
	if err := storage.CheckContent(id, reply.GetValue()); err != nil {
		return nil, err
	}
	return reply.GetValue(), nil
}

func (c *Client) HasContext(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	reply, err := c.rpc.Has(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return false, fromStatus(err)
	}
	return reply.GetValue(), nil
}

// CheckProvider asks the server which provider it names objects with and fails
// with storage.ErrCIDMismatch when it differs from the client's.
func (c *Client) CheckProvider(ctx context.Context) error {
	reply, err := c.rpc.Provider(ctx, &emptypb.Empty{})
	if err != nil {
		return fromStatus(err)
	}
	remote, err := digest.ParseProvider(reply.GetValue())
	if err != nil {
		return err
	}
	if remote != c.provider {
		return fmt.Errorf("%w: server uses %s, client uses %s", storage.ErrCIDMismatch, remote, c.provider)
	}
	return nil
}

func (c *Client) callContext() (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(context.Background(), c.Timeout)
	}
	return context.WithCancel(context.Background())
}
