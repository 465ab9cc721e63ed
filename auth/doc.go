// Package auth identifies callers of the playback API.
//
// Subpackages:
//
//   - auth/jwt      HMAC-signed bearer tokens (golang-jwt/jwt/v5)
//   - auth/authctx  caller identity carried on the request context
//
// Token issuance belongs to the identity provider; the service only verifies
// tokens. jwt.Service.Generate exists for tests and local tooling.
//
//	auth:
//	  enabled: true
//	  jwt:
//	    secret: "change-me"
//	    issuer: "https://id.example.com"
package auth
