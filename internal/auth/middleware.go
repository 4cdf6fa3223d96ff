package auth

import (
	"context"
	"net/http"
)

// PrincipalHeader carries the caller identity on API requests. Principal
// authentication (signatures, API keys) is terminated by the edge proxy;
// vaultd trusts the header and enforces authorization only.
const PrincipalHeader = "X-Vault-Principal"

type contextKey string

const principalKey contextKey = "principal"

// PrincipalMiddleware extracts the caller principal from the request header
// and stores it in the request context. Requests without a principal are
// still served; role checks on mutating operations will reject them.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := r.Header.Get(PrincipalHeader)
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext returns the caller principal, or "" if none was sent.
func PrincipalFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey).(string); ok {
		return p
	}
	return ""
}
