package logging

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"strings"
)

type idKeyType struct{}

var idKey idKeyType

// NewID returns a fresh correlation id: 20 random bytes, base32,
// lowercased. 160 bits encode to exactly 32 characters with no padding.
func NewID() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return strings.ToLower(base32.StdEncoding.EncodeToString(buf))
}

// WithID returns a context carrying the given correlation id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// IDFromContext returns the correlation id stored in ctx, or "".
func IDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(idKey).(string); ok {
		return id
	}
	return ""
}
