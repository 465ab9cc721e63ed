package playback

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/playurl/access"
	apperrors "github.com/kbukum/playurl/errors"
	"github.com/kbukum/playurl/lifecycle"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/server"
	"github.com/kbukum/playurl/server/middleware"
	"github.com/kbukum/playurl/signedurl"
	"github.com/kbukum/playurl/validation"
)

// URLService issues and invalidates signed URLs. *signedurl.Service
// implements it.
type URLService interface {
	Generate(ctx context.Context, resourceID, callerID string, opts signedurl.Options) (signedurl.Record, error)
	Invalidate(ctx context.Context, resourceID string) (int, error)
}

// Gate authorizes management actions. *access.Gate implements it.
type Gate interface {
	Check(ctx context.Context, callerID, resourceID string, action access.Action) (access.Decision, error)
}

// Deleter starts the deletion workflow. *lifecycle.Announcer implements it.
type Deleter interface {
	MarkDeleted(ctx context.Context, resourceID string) (lifecycle.Notice, error)
}

// URLResponse is the body of a successful URL request.
type URLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InvalidateResponse reports how many cached URLs were dropped.
type InvalidateResponse struct {
	ResourceID  string `json:"resource_id"`
	Invalidated int    `json:"invalidated"`
}

// DeleteResponse acknowledges a deletion; the object is purged later.
type DeleteResponse struct {
	ResourceID string    `json:"resource_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// Handler serves the track routes.
type Handler struct {
	urls          URLService
	gate          Gate
	deleter       Deleter
	hideForbidden bool
	log           *logger.Logger
}

// NewHandler creates a Handler. deleter may be nil, which disables DELETE.
func NewHandler(urls URLService, gate Gate, deleter Deleter, hideForbidden bool, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		urls:          urls,
		gate:          gate,
		deleter:       deleter,
		hideForbidden: hideForbidden,
		log:           log.WithComponent("playback"),
	}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	tracks := r.Group("/v1/tracks")
	tracks.GET("/:id/url", h.GetURL)
	tracks.POST("/:id/invalidate", h.Invalidate)
	if h.deleter != nil {
		tracks.DELETE("/:id", h.Delete)
	}
}

// GetURL handles GET /v1/tracks/:id/url?ttl=&refresh=.
func (h *Handler) GetURL(c *gin.Context) {
	callerID, ok := caller(c)
	if !ok {
		return
	}
	opts, err := parseOptions(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}

	id := c.Param("id")
	if err := validation.New().ResourceID("id", id).Err(); err != nil {
		server.RespondWithError(c, err)
		return
	}

	rec, err := h.urls.Generate(c.Request.Context(), id, callerID, opts)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.JSON(http.StatusOK, URLResponse{URL: rec.URL, ExpiresAt: rec.ExpiresAt})
}

// Invalidate handles POST /v1/tracks/:id/invalidate. Only callers allowed to
// delete the track may drop its cached URLs.
func (h *Handler) Invalidate(c *gin.Context) {
	id := c.Param("id")
	if !h.authorize(c, id) {
		return
	}
	n, err := h.urls.Invalidate(c.Request.Context(), id)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Error("Invalidation failed", logger.Fields(
			logger.FieldResourceID, id,
			logger.FieldError, err.Error(),
		))
		server.RespondWithError(c, apperrors.ServiceUnavailable("cache").WithCause(err))
		return
	}
	server.RespondOK(c, InvalidateResponse{ResourceID: id, Invalidated: n})
}

// Delete handles DELETE /v1/tracks/:id.
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !h.authorize(c, id) {
		return
	}
	n, err := h.deleter.MarkDeleted(c.Request.Context(), id)
	if err != nil {
		if _, ok := apperrors.AsAppError(err); !ok {
			h.log.WithContext(c.Request.Context()).Error("Deletion announcement failed", logger.Fields(
				logger.FieldResourceID, id,
				logger.FieldError, err.Error(),
			))
			err = apperrors.ServiceUnavailable("deletion workflow").WithCause(err)
		}
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, DeleteResponse{ResourceID: id, DeletedAt: n.DeletedAt})
}

func (h *Handler) authorize(c *gin.Context, resourceID string) bool {
	callerID, ok := caller(c)
	if !ok {
		return false
	}
	if err := validation.New().ResourceID("id", resourceID).Err(); err != nil {
		server.RespondWithError(c, err)
		return false
	}
	ctx := c.Request.Context()
	d, err := h.gate.Check(ctx, callerID, resourceID, access.ActionDelete)
	if err != nil {
		server.RespondWithError(c, apperrors.ServiceUnavailable("record store").WithCause(err))
		return false
	}
	if err := d.Err(resourceID, h.hideForbidden); err != nil {
		server.RespondWithError(c, err)
		return false
	}
	return true
}

func caller(c *gin.Context) (string, bool) {
	id := middleware.CallerID(c)
	if id == "" {
		server.RespondWithError(c, apperrors.Unauthorized(""))
		return "", false
	}
	return id, true
}

// parseOptions reads ttl as a Go duration ("15m") or whole seconds, and
// refresh as a boolean.
func parseOptions(c *gin.Context) (signedurl.Options, error) {
	var opts signedurl.Options
	if raw := strings.TrimSpace(c.Query("ttl")); raw != "" {
		ttl, err := parseTTL(raw)
		if err != nil {
			return opts, apperrors.InvalidInput("ttl", "ttl must be a duration like 15m or a number of seconds")
		}
		opts.TTL = ttl
	}
	if raw := strings.TrimSpace(c.Query("refresh")); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, apperrors.InvalidInput("refresh", "refresh must be true or false")
		}
		opts.ForceRefresh = refresh
	}
	return opts, nil
}

func parseTTL(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs < 0 {
			return 0, strconv.ErrRange
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, strconv.ErrRange
	}
	return d, nil
}
