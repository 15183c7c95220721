package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/monsterbattle/cache"
	"github.com/kasuganosora/monsterbattle/config"
	mw "github.com/kasuganosora/monsterbattle/middleware"
)

// AuthHandler issues and revokes player tokens. Accounts live elsewhere;
// the token endpoint is only mounted in debug mode.
type AuthHandler struct {
	store cache.Store
	sec   config.SecurityConfig
}

func NewAuthHandler(store cache.Store, sec config.SecurityConfig) *AuthHandler {
	return &AuthHandler{store: store, sec: sec}
}

type tokenRequest struct {
	PlayerID int64 `json:"player_id" binding:"required,min=1"`
}

// DevToken handles POST /api/auth/token.
func (h *AuthHandler) DevToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tok, err := mw.GenerateToken(req.PlayerID, h.sec.JWTSecret, h.sec.TokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "player_id": req.PlayerID})
}

// Logout handles POST /api/auth/logout. The caller's token stops working.
func (h *AuthHandler) Logout(c *gin.Context) {
	tok, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		tok = c.Query("token")
	}
	claims, err := mw.ParseToken(tok, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err := mw.Revoke(c.Request.Context(), h.store, claims); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "auth store unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}
