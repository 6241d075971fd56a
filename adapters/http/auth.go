package http

import (
	"net/http"
	"strings"

	"github.com/artpar/carebill/pkg/jsonapi"
	"github.com/artpar/carebill/ports"
)

// NewTriggerAuth requires "Authorization: Bearer <token>" matching hash.
// With no hash configured every request passes.
func NewTriggerAuth(hasher ports.Hasher, hash []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(hash) == 0 || hasher == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				jsonapi.WriteError(w, jsonapi.ErrUnauthorized("Bearer token required"))
				return
			}
			if !hasher.Compare(hash, token) {
				jsonapi.WriteError(w, jsonapi.ErrUnauthorized("Invalid trigger token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(auth[7:])
	return token, token != ""
}
