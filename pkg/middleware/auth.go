package middleware

import (
	"net/http"
	"strings"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/auth"
	"github.com/formulafinance/licensehub/pkg/contextkeys"
	"github.com/formulafinance/licensehub/pkg/httputil"
	"github.com/formulafinance/licensehub/pkg/observability"
)

// Authenticator resolves bearer tokens into caller identities
type Authenticator struct {
	verifier auth.TokenVerifier
}

// NewAuthenticator creates a new authentication middleware
func NewAuthenticator(verifier auth.TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Handler wraps an HTTP handler with authentication
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			httputil.WriteErrorKind(w, apierrors.KindUnauthenticated, "invalid authorization header format")
			return
		}

		principal, err := a.verifier.Verify(r.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("Token verification failed")
			httputil.WriteErrorKind(w, apierrors.KindUnauthenticated, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), principal.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
