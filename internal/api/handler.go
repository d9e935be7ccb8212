package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/24ep/studio-sub000/internal/config"
	"github.com/24ep/studio-sub000/internal/intake"
	"github.com/24ep/studio-sub000/internal/jobs"
	"github.com/24ep/studio-sub000/internal/ledger"
	"github.com/24ep/studio-sub000/internal/logger"
	"github.com/24ep/studio-sub000/internal/stages"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// QueueDepth reports pending and dead-lettered import messages.
type QueueDepth interface {
	Depth(ctx context.Context) (pending, dead int64, err error)
}

// Listeners counts connected websocket clients.
type Listeners interface {
	ClientCount() int
}

type Handler struct {
	jobs   *jobs.Manager
	intake *intake.Service
	ledger *ledger.Ledger
	stages *stages.Engine
	db     Pinger
	queue  QueueDepth
	hub    Listeners
	cfg    *config.Config
	log    zerolog.Logger
}

func NewHandler(
	manager *jobs.Manager,
	svc *intake.Service,
	ldg *ledger.Ledger,
	engine *stages.Engine,
	db Pinger,
	queue QueueDepth,
	hub Listeners,
	cfg *config.Config,
) *Handler {
	return &Handler{
		jobs:   manager,
		intake: svc,
		ledger: ldg,
		stages: engine,
		db:     db,
		queue:  queue,
		hub:    hub,
		cfg:    cfg,
		log:    logger.Component("api"),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	}

	if err := h.db.PingContext(ctx); err != nil {
		h.log.Error().Err(err).Msg("Database ping failed")
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "unreachable"
	} else {
		body["database"] = "ok"
	}

	if h.queue != nil {
		pending, dead, err := h.queue.Depth(ctx)
		if err != nil {
			h.log.Warn().Err(err).Msg("Queue depth unavailable")
			body["queue"] = gin.H{"error": "unreachable"}
		} else {
			body["queue"] = gin.H{"pending": pending, "dead": dead}
		}
	}
	if h.hub != nil {
		body["websocket_clients"] = h.hub.ClientCount()
	}

	c.JSON(status, body)
}

// writeError maps a domain error to its HTTP status.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, errorBody(err))
}

func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsConflict(err):
		return http.StatusConflict
	case apperrors.IsDependency(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}

	var ve apperrors.ValidationError
	var ce apperrors.ConflictError
	switch {
	case errors.As(err, &ve):
		body["field"] = ve.Field
	case errors.As(err, &ce):
		body["current"] = ce.Current
	case statusFor(err) == http.StatusInternalServerError:
		body["error"] = "Internal server error"
	}
	return body
}
