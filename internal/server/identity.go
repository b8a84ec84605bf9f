package server

import (
	"context"
	"net/http"
	"strings"

	"ragconsole/internal/access"
	"ragconsole/internal/conversation"
)

type ctxKey int

const identityKey ctxKey = iota

// identity resolves who is calling from the headers set by the auth gateway
// in front of the console, falling back to the configured defaults.
func (s *Server) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.deps.Config
		id := conversation.Identity{
			TenantID: firstNonEmpty(r.Header.Get("X-Tenant-Id"), cfg.DefaultTenantID),
			UserID:   firstNonEmpty(r.Header.Get("X-User-Id"), cfg.DefaultUserID),
			UIMode:   access.ParseUIMode(cfg.UIMode),
		}
		if h := r.Header.Get("X-User-Roles"); h != "" {
			id.Roles = access.ParseRoles(h)
		} else {
			id.Roles = access.ParseRoles(strings.Join(cfg.DefaultRoles, ","))
		}
		if id.TenantID == "" {
			s.writeError(w, http.StatusBadRequest, "tenant is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func identityFrom(ctx context.Context) conversation.Identity {
	id, _ := ctx.Value(identityKey).(conversation.Identity)
	return id
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
