// Package api assembles the licensehub HTTP API.
//
// NewServer mounts every resource handler under /api and wraps them in the
// middleware chain: request IDs, request logging, panic recovery, CORS,
// body size limits, bearer authentication and the route guard. The guard
// consults the rbac route table, so a route registered without a policy is
// refused rather than served.
//
// Health probes and /metrics are served separately by the binary on the
// health port.
package api
