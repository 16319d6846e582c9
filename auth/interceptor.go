package auth

import (
	"context"
	"fmt"
	"strings"

	"housing-chat/domain/chat"
	"housing-chat/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const IdentityKey contextKey = "identity"

// UnaryInterceptor authenticates every unary call. A nil verifier lets everything through.
func UnaryInterceptor(v *Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if v == nil {
			return handler(ctx, req)
		}
		newCtx, err := v.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// StreamInterceptor is the streaming twin of UnaryInterceptor.
func StreamInterceptor(v *Verifier) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if v == nil {
			return handler(srv, ss)
		}
		newCtx, err := v.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: newCtx})
	}
}

// Authorize checks that the caller acts as the identity it authenticated with.
// Without authentication in the context every claim is trusted.
func Authorize(ctx context.Context, claimed chat.Identity) error {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity == claimed {
		return nil
	}
	return fmt.Errorf("%w: authenticated as %s, acting as %s", errors.ErrUnauthorized, identity, claimed)
}

func IdentityFromContext(ctx context.Context) (chat.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(chat.Identity)
	return identity, ok
}

func (v *Verifier) authenticate(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "metadata is missing")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "authorization token is missing")
	}
	identity, err := v.Verify(strings.TrimPrefix(values[0], "Bearer "))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return context.WithValue(ctx, IdentityKey, identity), nil
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}
