// Package middleware provides the HTTP middleware chain in front of the API.
//
// Order, outermost first:
//
//	router.Use(middleware.RequestID)
//	router.Use(middleware.RequestLogger(logger))
//	router.Use(middleware.Recovery)
//	router.Use(middleware.NewAuthenticator(verifier).Handler)
//	router.Use(rbac.NewGuard(...).Handler)
//
// Authenticator resolves the bearer token into a caller identity. It does not
// decide access: requests without a token continue anonymously and the rbac
// guard rejects them for every route that is not public. A token that is
// present but invalid is rejected with 401 immediately.
//
// RateLimit limits per caller identity (or client IP when anonymous). The
// Redis-backed DistributedRateLimiter shares windows across instances; the
// in-memory RateLimiter is used when Redis is not configured.
package middleware
