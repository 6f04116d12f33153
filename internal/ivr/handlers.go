package ivr

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"repcall/internal/elks"
	"repcall/internal/registry"
	"repcall/pkg/logger"
)

// Handlers adapts the engine to the provider's webhook HTTP surface.
//
// Every webhook is answered 200: the provider has no retry channel, and
// a non-200 would only leave the caller in dead air. Errors are logged
// and the call is dropped with a hangup action instead.
type Handlers struct {
	engine *Engine
	store  MedialistStore
}

func NewHandlers(engine *Engine, store MedialistStore) *Handlers {
	return &Handlers{engine: engine, store: store}
}

// Register mounts the webhook and media routes on the given groups. The
// webhook group is expected to carry the provider IP allow-list; the
// media route is served to the provider's media fetcher without it, the
// medialist id being unguessable.
func (h *Handlers) Register(webhooks, media *gin.RouterGroup) {
	webhooks.POST("/voice-start", h.VoiceStart)
	webhooks.POST("/next", h.Next)
	webhooks.POST("/connect", h.Connect)
	webhooks.POST("/hangup", h.Hangup)
	media.GET("/media/:id", h.Media)
}

func (h *Handlers) VoiceStart(c *gin.Context) {
	form, err := elks.ParseMenuForm(c.Request)
	if err != nil {
		logger.FromGin(c).Error("bad voice-start form", "error", err)
		c.JSON(http.StatusOK, hangupAction())
		return
	}
	action, err := h.engine.MainMenu(c.Request.Context(), form.CallID)
	h.respond(c, action, err)
}

func (h *Handlers) Next(c *gin.Context) {
	form, err := elks.ParseDigitForm(c.Request)
	if err != nil {
		logger.FromGin(c).Error("bad digit form", "error", err)
		c.JSON(http.StatusOK, hangupAction())
		return
	}
	action, err := h.engine.CollectDigit(c.Request.Context(), form)
	h.respond(c, action, err)
}

func (h *Handlers) Connect(c *gin.Context) {
	callID := c.PostForm("callid")
	if callID == "" {
		logger.FromGin(c).Error("connect callback missing callid")
		c.JSON(http.StatusOK, hangupAction())
		return
	}
	action, err := h.engine.Bridge(c.Request.Context(), callID)
	h.respond(c, action, err)
}

func (h *Handlers) Hangup(c *gin.Context) {
	form, err := elks.ParseHangupForm(c.Request)
	if err != nil {
		logger.FromGin(c).Error("bad hangup form", "error", err)
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if err := h.engine.Hangup(c.Request.Context(), form); err != nil {
		logger.FromGin(c).Error("hangup processing failed",
			"provider_call_id", form.CallID, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Media streams the concatenated clips of a medialist.
func (h *Handlers) Media(c *gin.Context) {
	ml, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrMedialistNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown medialist"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("medialist lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Header("Content-Type", ml.Mimetype)
	c.Status(http.StatusOK)
	for _, path := range ml.Paths {
		f, err := os.Open(path)
		if err != nil {
			logger.FromGin(c).Error("missing audio clip", "path", path, "error", err)
			return
		}
		_, copyErr := io.Copy(c.Writer, f)
		f.Close()
		if copyErr != nil {
			return
		}
	}
}

func (h *Handlers) respond(c *gin.Context, action Action, err error) {
	if errors.Is(err, registry.ErrCallNotFound) {
		logger.FromGin(c).Error("webhook for unknown call", "path", c.FullPath())
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("ivr transition failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusOK, hangupAction())
		return
	}
	c.JSON(http.StatusOK, action)
}
