package middleware

import (
	"net/http"
	"strings"

	"github.com/legalops/caseledger/internal/auth"
)

// ActorHeader names the request header the middleware reads the acting
// user's identity from. The upstream gateway sets it after authentication.
const ActorHeader = "X-Actor"

// ActorMiddleware copies the authenticated actor identity from the request
// header into the context so handlers can attribute ledger writes.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor != "" {
			r = r.WithContext(auth.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
