// Package authctx carries the authenticated caller on a request context.
//
//	ctx = authctx.WithCaller(ctx, "user-123")
//	id, ok := authctx.CallerID(ctx)
package authctx

import (
	"context"
	"errors"
)

type contextKey struct{}

// ErrNoCaller is returned when no caller is attached to the context.
var ErrNoCaller = errors.New("authctx: no caller in context")

// WithCaller stores the caller id.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, contextKey{}, callerID)
}

// CallerID returns the caller id and whether a non-empty one was set.
func CallerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// RequireCaller returns the caller id or ErrNoCaller.
func RequireCaller(ctx context.Context) (string, error) {
	id, ok := CallerID(ctx)
	if !ok {
		return "", ErrNoCaller
	}
	return id, nil
}
