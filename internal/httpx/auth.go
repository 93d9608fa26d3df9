package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/domain"
)

type ctxKey int

const principalKey ctxKey = iota

// Authenticate maps the gateway-injected identity headers to a Principal.
// X-User-Id carries the account id, X-User-Roles a comma-separated role
// list. Requests without an identity are rejected.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"code":  "UNAUTHENTICATED",
				"error": "missing X-User-Id header",
			})
			return
		}
		p := domain.Principal{ID: id}
		for _, role := range strings.Split(r.Header.Get("X-User-Roles"), ",") {
			if strings.EqualFold(strings.TrimSpace(role), "admin") {
				p.Admin = true
			}
		}
		ctx := context.WithValue(r.Context(), principalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(r *http.Request) domain.Principal {
	p, _ := r.Context().Value(principalKey).(domain.Principal)
	return p
}
