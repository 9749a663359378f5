package updatesvc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// fromStatus converts an RPC failure into a domain.RemoteError. A call
// cancelled by the caller's context keeps the context error instead.
func fromStatus(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	if st.Code() == codes.Canceled && ctx.Err() != nil {
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
	return &domain.RemoteError{
		Category: categoryOf(st.Code()),
		Message:  st.Message(),
	}
}

func categoryOf(code codes.Code) domain.Category {
	switch code {
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return domain.CategoryInvalidArgument
	case codes.Unauthenticated:
		return domain.CategoryUnauthenticated
	case codes.PermissionDenied:
		return domain.CategoryPermissionDenied
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return domain.CategoryUnavailable
	default:
		return domain.CategoryInternal
	}
}

// toStatus converts a service implementation error into a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return status.Error(codes.InvalidArgument, verr.Error())
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	cat, ok := domain.CategoryOf(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	msg := err.Error()
	var re *domain.RemoteError
	if errors.As(err, &re) && re.Message != "" {
		msg = re.Message
	}
	switch cat {
	case domain.CategoryInvalidArgument:
		return status.Error(codes.InvalidArgument, msg)
	case domain.CategoryUnauthenticated:
		return status.Error(codes.Unauthenticated, msg)
	case domain.CategoryPermissionDenied:
		return status.Error(codes.PermissionDenied, msg)
	case domain.CategoryUnavailable:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
