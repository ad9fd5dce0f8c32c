package grpccas

import (
	"context"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/signet/digest"
	"xdao.co/signet/internal/log"
	"xdao.co/signet/storage"
)

// Server serves a storage.CAS. It holds the backend to the same contract the
// client does: a Put answered with another CID, or a Get returning bytes that
// no longer match, is reported as DataLoss instead of passed on.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS
	// DigestProvider is the provider CAS names objects with; zero means
	// storage.DefaultProvider.
	DigestProvider digest.Provider
	// Logger defaults to a no-op logger.
	Logger log.Logger
}

var errNoBackend = status.Error(codes.FailedPrecondition, "no CAS configured")

func (s *Server) ready() bool { return s != nil && s.CAS != nil }

func (s *Server) logger() log.Logger {
	if s.Logger == nil {
		return log.NewNopLogger()
	}
	return s.Logger
}

func (s *Server) provider() digest.Provider {
	if s == nil {
		return storage.DefaultProvider
	}
	return storage.ProviderOrDefault(s.DigestProvider)
}

func decodeID(in *wrapperspb.StringValue) (cid.Cid, error) {
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return id, nil
}

func (s *Server) Put(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if !s.ready() {
		return nil, errNoBackend
	}
	data := in.GetValue()
	want, err := storage.ContentID(s.provider(), data)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	got, err := s.CAS.Put(data)
	if err != nil {
		s.logger().Error("put failed", "cid", want, "err", err)
		return nil, toStatus(err)
	}
	if got != want {
		s.logger().Error("backend named object differently", "got", got, "want", want)
		return nil, toStatus(storage.ErrCIDMismatch)
	}
	s.logger().Debug("put", "cid", got, "bytes", len(data))
	return wrapperspb.String(got.String()), nil
}

func (s *Server) Get(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if !s.ready() {
		return nil, errNoBackend
	}
	id, err := decodeID(in)
	if err != nil {
		return nil, err
	}
	data, err := s.CAS.Get(id)
	if err == nil {
		err = storage.CheckContent(id, data)
	}
	switch {
	case err == nil:
		s.logger().Debug("get", "cid", id, "bytes", len(data))
		return wrapperspb.Bytes(data), nil
	case storage.IsNotFound(err):
		s.logger().Debug("get miss", "cid", id)
	default:
		s.logger().Error("get failed", "cid", id, "err", err)
	}
	return nil, toStatus(err)
}

func (s *Server) Has(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if !s.ready() {
		return nil, errNoBackend
	}
	id, err := decodeID(in)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

// Provider lets clients refuse a server that names objects with a different
// provider before they write anything.
func (s *Server) Provider(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(s.provider().String()), nil
}
