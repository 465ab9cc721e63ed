// Package config loads service configuration from a YAML file, an optional
// .env file and PLAYURL_* environment variables, in that order of precedence
// (later sources win).
//
//	var cfg ServiceConfig
//	err := config.Load("playurld", &cfg, config.WithConfigFile(path))
//
// Environment variables map onto nested keys by splitting on underscores, so
// PLAYURL_SIGNEDURL_DEFAULT_TTL can set signedurl.default_ttl.
package config
