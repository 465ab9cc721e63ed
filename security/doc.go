// Package security builds client TLS configuration for the Redis and Kafka
// connections.
//
//	cfg := security.TLSConfig{
//	    CAFile:   "/etc/playurl/ca.pem",
//	    CertFile: "/etc/playurl/client.pem",
//	    KeyFile:  "/etc/playurl/client-key.pem",
//	}
//	tlsConfig, err := cfg.Build()
package security
