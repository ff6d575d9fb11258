package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/librarycatalog/library-server/internal/auth"
)

// viewerMiddleware attaches the request's viewer to the context.
// A missing or invalid token yields an anonymous viewer; resolvers decide
// whether that is acceptable.
func (s *Server) viewerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := s.resolveViewer(r.Context(), r.Header.Get("Authorization"), r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(auth.WithViewer(r.Context(), v)))
	})
}

func (s *Server) resolveViewer(ctx context.Context, header, remoteAddr string) *auth.Viewer {
	v := auth.Anonymous(clientHost(remoteAddr))

	token, ok := bearerToken(header)
	if !ok {
		return v
	}

	user, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		s.logger.Debug("ignoring bearer token", "error", err, "remote_addr", v.RemoteAddr)
		return v
	}
	v.User = user
	return v
}

// bearerToken extracts the token from an Authorization header value.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// clientHost strips the port so one client maps to one rate limit key.
func clientHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
