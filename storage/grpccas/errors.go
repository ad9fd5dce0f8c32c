package grpccas

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/signet/storage"
)

// statusTable pairs storage sentinels with the status codes they travel as.
// The first matching entry wins in both directions.
var statusTable = []struct {
	err  error
	code codes.Code
}{
	{storage.ErrNotFound, codes.NotFound},
	{storage.ErrInvalidCID, codes.InvalidArgument},
	{storage.ErrCIDMismatch, codes.DataLoss},
	{storage.ErrImmutable, codes.AlreadyExists},
}

// toStatus converts a backend error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return status.Error(e.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus converts a gRPC status error back into a storage sentinel.
// Unknown codes keep the status error, unless the message names a sentinel.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, e := range statusTable {
		if st.Code() == e.code || st.Message() == e.err.Error() {
			return e.err
		}
	}
	return err
}
