// Package playback exposes signed playback URLs and track deletion over
// HTTP. Routes expect the caller id set by server/middleware.Auth.
package playback
