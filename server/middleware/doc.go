// Package middleware holds the HTTP middleware used by the server.
//
// Server-level middleware (Recovery, RequestID, CORS, BodySizeLimit,
// RequestLogger) uses the net/http Middleware signature and wraps the whole
// handler. Route-level middleware (Auth, RateLimit, Metrics) is Gin-specific
// because it needs the matched route and the caller id.
package middleware
