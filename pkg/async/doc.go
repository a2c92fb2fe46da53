// Package async drives periodic background work for the licensehub binaries,
// such as rate limiter cleanup and connection pool metrics. A panic or error
// in one tick is logged through the observability logger and the loop keeps
// running until its context is cancelled.
package async
