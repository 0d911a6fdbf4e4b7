package cart

import (
	"context"
	"errors"
	"net/http"
)

var ErrNoProvider = errors.New("cart: no store in context, call must happen inside a cart provider scope")

type contextKey struct{}

// NewContext opens a provider scope: code running under the returned context can
// reach s through FromContext.
func NewContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (*Store, error) {
	s, ok := ctx.Value(contextKey{}).(*Store)
	if !ok || s == nil {
		return nil, ErrNoProvider
	}
	return s, nil
}

// MustFromContext is FromContext for code that can only run inside a provider scope.
// It panics instead of handing out an empty cart that would never be persisted.
func MustFromContext(ctx context.Context) *Store {
	s, err := FromContext(ctx)
	if err != nil {
		panic("cart: MustFromContext must be used within a cart provider scope")
	}
	return s
}

// Provider is the HTTP middleware form of NewContext.
func Provider(s *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s)))
		})
	}
}
