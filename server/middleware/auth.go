package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/playurl/auth/authctx"
	apperrors "github.com/kbukum/playurl/errors"
	"github.com/kbukum/playurl/logger"
)

// HeaderCallerID names the caller when authentication is disabled.
const HeaderCallerID = "X-Caller-Id"

// ContextKeyCallerID is the gin.Context key holding the caller id.
const ContextKeyCallerID = "caller_id"

// SubjectFunc validates a bearer token and returns the caller id.
type SubjectFunc func(token string) (string, error)

// AuthConfig configures the authentication middleware.
type AuthConfig struct {
	// Subject validates tokens. Nil disables token checks and trusts the
	// X-Caller-Id header instead.
	Subject SubjectFunc
	// SkipPaths are URL path prefixes that bypass authentication.
	SkipPaths []string
	Log       *logger.Logger
}

// Auth identifies the caller and stores the id on both the gin.Context and
// the request context (authctx). Failures answer 401 with the AppError
// envelope; the validation error itself is only logged.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("auth")

	return func(c *gin.Context) {
		for _, skip := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, skip) {
				c.Next()
				return
			}
		}

		callerID, err := identify(c, cfg.Subject)
		if err != nil {
			log.WithContext(c.Request.Context()).Warn("Authentication failed", logger.Fields(
				"path", c.Request.URL.Path,
				logger.FieldError, err.Error(),
			))
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
			return
		}

		c.Set(ContextKeyCallerID, callerID)
		c.Request = c.Request.WithContext(authctx.WithCaller(c.Request.Context(), callerID))
		c.Next()
	}
}

func identify(c *gin.Context, subject SubjectFunc) (string, error) {
	if subject == nil {
		id := strings.TrimSpace(c.GetHeader(HeaderCallerID))
		if id == "" {
			return "", authctx.ErrNoCaller
		}
		return id, nil
	}
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errMalformedAuthorization
	}
	return subject(token)
}

var errMalformedAuthorization = apperrors.Unauthorized("malformed authorization header")

// CallerID returns the id stored by Auth.
func CallerID(c *gin.Context) string {
	return c.GetString(ContextKeyCallerID)
}
