package auth

import (
	"context"

	"github.com/librarycatalog/library-server/internal/domain"
)

// Viewer is the identity behind one request, built once by the transport layer.
type Viewer struct {
	// User is nil for anonymous requests.
	User *domain.User
	// RemoteAddr identifies the client for rate limiting.
	RemoteAddr string
}

// Anonymous returns a viewer without a user.
func Anonymous(remoteAddr string) *Viewer {
	return &Viewer{RemoteAddr: remoteAddr}
}

// Authenticated reports whether the request carried a valid token for an existing user.
func (v *Viewer) Authenticated() bool {
	return v != nil && v.User != nil
}

type viewerKey struct{}

// WithViewer stores v in ctx.
func WithViewer(ctx context.Context, v *Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFrom returns the viewer stored in ctx, or an anonymous viewer.
func ViewerFrom(ctx context.Context) *Viewer {
	if v, ok := ctx.Value(viewerKey{}).(*Viewer); ok && v != nil {
		return v
	}
	return Anonymous("")
}
