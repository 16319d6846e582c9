package errors

import (
	goerrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	// ErrValidation covers malformed requests. Never retried.
	ErrValidation     = fmt.Errorf("validation error")
	ErrEmptyText      = fmt.Errorf("%w: text is empty", ErrValidation)
	ErrUnknownChat    = fmt.Errorf("%w: unknown chat", ErrValidation)
	ErrUnknownMessage = fmt.Errorf("%w: unknown message", ErrValidation)

	// ErrUnauthorized covers a sender or caller that is not entitled to act on a chat.
	ErrUnauthorized = fmt.Errorf("authorization error")
	ErrNotMember    = fmt.Errorf("%w: sender is not a member of the chat", ErrUnauthorized)
	ErrInvalidToken = fmt.Errorf("%w: invalid or expired identity token", ErrUnauthorized)

	// ErrChatConflict is raised by stores when another writer created the same pair first.
	// The directory resolves it by re-fetching; it never reaches a client.
	ErrChatConflict = fmt.Errorf("chat pair already exists")

	ErrNotFound    = fmt.Errorf("record not found")
	ErrPersistence = fmt.Errorf("persistence error")

	// ErrDelivery is a failed live push. Logged and dropped, the message stays persisted.
	ErrDelivery       = fmt.Errorf("delivery error")
	ErrSinkFull       = fmt.Errorf("%w: connection buffer is full", ErrDelivery)
	ErrSinkClosed     = fmt.Errorf("%w: connection is closed", ErrDelivery)
	ErrSearchDisabled = fmt.Errorf("search index is disabled")
)

// MapToGRPCError converts a domain error into a gRPC status error.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case goerrors.Is(err, ErrUnknownChat), goerrors.Is(err, ErrUnknownMessage):
		return status.Error(codes.NotFound, err.Error())
	case goerrors.Is(err, ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case goerrors.Is(err, ErrInvalidToken):
		return status.Error(codes.Unauthenticated, err.Error())
	case goerrors.Is(err, ErrUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case goerrors.Is(err, ErrSearchDisabled):
		return status.Error(codes.FailedPrecondition, err.Error())
	case goerrors.Is(err, ErrPersistence):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
