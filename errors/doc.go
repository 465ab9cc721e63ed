// Package errors defines the error taxonomy surfaced to playback callers.
// Every outward error is an *AppError carrying a machine-readable code, the
// HTTP status it maps to and whether the caller may retry.
package errors
