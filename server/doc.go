// Package server provides the playurl HTTP server: Gin behind an h2c
// handler, a net/http middleware chain and the probe endpoints.
//
//	srv := server.New(cfg.Server, log)
//	srv.ApplyDefaults("playurl", registry.HealthAll, inflightDetail)
//	api := srv.GinEngine().Group("/v1", middleware.Auth(authCfg))
//	registry.Register(server.NewComponent(srv))
//
// # Endpoints
//
//   - GET /health  component health plus extra details; 503 when unhealthy
//   - GET /alive   liveness probe
//   - GET /ready   readiness probe; degraded components keep it ready
//   - GET /info    build information
//
// Errors are written with RespondWithError, which renders the AppError
// envelope and hides anything that is not an AppError behind a generic 500.
package server
