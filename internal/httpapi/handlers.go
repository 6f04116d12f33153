package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"repcall/internal/auth"
	"repcall/internal/destinations"
	"repcall/internal/elks"
	"repcall/internal/numberpool"
	"repcall/internal/selectlog"
	"repcall/pkg/logger"
)

// CallStarter places the outbound call. Satisfied by *elks.Gateway.
type CallStarter interface {
	StartCall(ctx context.Context, userPhone, userLanguage, userID, destinationID string) (elks.InitialState, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Gateway      CallStarter
	Destinations destinations.Repository
	Events       *selectlog.Service
	Auth         *auth.Manager

	// OperatorSecret is the shared secret exchanged for a bearer token.
	OperatorSecret string
}

// --- Auth ---

type tokenRequest struct {
	Operator string `json:"operator"`
	Secret   string `json:"secret"`
}

// IssueToken exchanges the operator secret for a bearer token.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil || h.OperatorSecret == "" {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Operator == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "operator required"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.OperatorSecret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}
	token, err := h.Auth.IssueToken(time.Now(), req.Operator)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

// --- Calls ---

type startCallRequest struct {
	PhoneNumber   string `json:"phone_number"`
	Language      string `json:"language"`
	DestinationID string `json:"destination_id"`
}

// StartCall places the outbound call to the user. The response state is
// the provider's synchronous verdict; busy/failed are normal outcomes
// and still answer 200.
func (h Handlers) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" || req.Language == "" || req.DestinationID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone_number, language, destination_id required"})
		return
	}
	if _, err := h.Destinations.Get(c.Request.Context(), req.DestinationID); err != nil {
		if errors.Is(err, destinations.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown destination"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "destination lookup failed"})
		return
	}

	state, err := h.Gateway.StartCall(c.Request.Context(),
		req.PhoneNumber, req.Language, hashUserPhone(req.PhoneNumber), req.DestinationID)
	if errors.Is(err, numberpool.ErrNoNumbersAvailable) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "no caller-id numbers available"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call initiation failed", "error", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call initiation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(state)})
}

// --- Destinations ---

// SuggestDestination returns a random destination and records the
// suggestion in the selection log.
func (h Handlers) SuggestDestination(c *gin.Context) {
	dest, err := h.Destinations.PickRandom(c.Request.Context(), nil)
	if errors.Is(err, destinations.ErrNoAlternative) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no destinations"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "suggestion failed"})
		return
	}
	if err := h.Events.Log(c.Request.Context(), selectlog.KindWebSuggested, dest.ID, "", ""); err != nil {
		logger.FromGin(c).Error("suggestion logging failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "suggestion failed"})
		return
	}
	c.JSON(http.StatusOK, dest)
}

// hashUserPhone derives the opaque user id stored with calls and
// selection events. Raw phone numbers never reach the database.
func hashUserPhone(phone string) string {
	sum := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:16])
}
