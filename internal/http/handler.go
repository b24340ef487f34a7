package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"anpr-watch/internal/engine"
	"anpr-watch/internal/pipeline"
	"anpr-watch/internal/service"
)

const maxFrameBody = 4 << 20

// FrameSink accepts engine output pushed over HTTP.
type FrameSink interface {
	Push(ctx context.Context, f engine.Frame) error
}

type Handler struct {
	session *service.Session
	history *service.HistoryService
	frames  FrameSink
	log     zerolog.Logger
}

// NewHandler wires the API. frames may be nil when the loop is fed from a
// replay file; the ingest endpoint then answers 409.
func NewHandler(
	session *service.Session,
	history *service.HistoryService,
	frames FrameSink,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		session: session,
		history: history,
		frames:  frames,
		log:     log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", h.health)

	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.GET("/status", h.status)
		public.GET("/confirmations", h.listConfirmations)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/registry", h.listRegistry)
		protected.POST("/anpr/frames", h.pushFrame)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.session.Status()))
}

func (h *Handler) listConfirmations(c *gin.Context) {
	q := service.ConfirmationQuery{
		HitsOnly: c.Query("hits") == "true",
	}
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		q.Plate = &plate
	}
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		q.From = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		q.To = &t
	}

	q.Limit = 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			q.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			q.Offset = parsed
		}
	}

	found, err := h.history.FindConfirmations(c.Request.Context(), q)
	if err != nil {
		h.handleError(c, err)
		return
	}
	resp := successResponse(found)
	if q.Plate != nil {
		last, err := h.history.LastConfirmation(c.Request.Context(), *q.Plate)
		if err != nil {
			h.handleError(c, err)
			return
		}
		resp["last_confirmed_at"] = last
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listRegistry(c *gin.Context) {
	plates, err := h.session.RegistryPlates()
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(plates))
}

// pushFrame takes one frame's raw engine JSON and queues it for the loop.
func (h *Handler) pushFrame(c *gin.Context) {
	if h.frames == nil {
		c.JSON(http.StatusConflict, errorResponse("frame ingest is disabled for this source"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFrameBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if len(body) > maxFrameBody {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse("frame too large"))
		return
	}

	f := engine.Frame{Format: engine.PixelFormatRecorded, Data: body, At: time.Now()}
	if err := h.frames.Push(c.Request.Context(), f); err != nil {
		if errors.Is(err, pipeline.ErrSourceClosed) {
			c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
			return
		}
		h.log.Warn().Err(err).Msg("failed to queue frame")
		c.JSON(http.StatusServiceUnavailable, errorResponse("frame queue unavailable"))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "mode": h.session.Mode()})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
