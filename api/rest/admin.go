package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/monsterbattle/game/encounter"
	"go.uber.org/zap"
)

// AdminHandler serves operator endpoints. Routes should sit behind the
// IPWhitelist middleware.
type AdminHandler struct {
	svc    *encounter.Service
	logger *zap.Logger
}

func NewAdminHandler(svc *encounter.Service, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{svc: svc, logger: logger}
}

// Register mounts the routes on g.
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	g.GET("/battles", h.Battles)
	g.GET("/pending-captures", h.PendingCaptures)
	g.POST("/pending-captures/retry", h.RetryPending)
}

// Battles handles GET /api/admin/battles.
func (h *AdminHandler) Battles(c *gin.Context) {
	active, err := h.svc.Active(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"battles": active, "count": len(active), "live": h.svc.Count()})
}

// PendingCaptures handles GET /api/admin/pending-captures.
func (h *AdminHandler) PendingCaptures(c *gin.Context) {
	waiting, err := h.svc.Pending().Peek(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": waiting, "count": len(waiting)})
}

// RetryPending handles POST /api/admin/pending-captures/retry.
func (h *AdminHandler) RetryPending(c *gin.Context) {
	saved, err := h.svc.Pending().Retry(c.Request.Context())
	left, _ := h.svc.Pending().Len(c.Request.Context())
	if err != nil {
		h.logger.Warn("manual pending retry stopped", zap.Int("saved", saved), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"saved": saved, "remaining": left, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": saved, "remaining": left})
}
