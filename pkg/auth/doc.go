// Package auth verifies bearer tokens issued by the external identity provider.
//
// The service never issues production tokens itself. A TokenVerifier turns a
// raw bearer token into a Principal whose Identity is the token subject; the
// identity is an opaque string that keys the role store.
//
// Two verifiers are provided:
//
//   - HMACVerifier checks HS256 tokens signed with a shared secret
//     (golang-jwt). Used for development and service-to-service calls.
//   - OIDCVerifier checks RS256 ID tokens against the issuer's published
//     keys discovered through OpenID Connect (go-oidc).
//
// Example:
//
//	verifier := auth.NewHMACVerifier(secret, "licensehub", "")
//	principal, err := verifier.Verify(ctx, raw)
//	if err != nil {
//		// 401
//	}
package auth
