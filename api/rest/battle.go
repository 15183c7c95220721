package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/monsterbattle/game/encounter"
	mw "github.com/kasuganosora/monsterbattle/middleware"
)

// BattleHandler exposes the battle service over REST. Every route acts on
// the authenticated player's own battle.
type BattleHandler struct {
	svc *encounter.Service
}

func NewBattleHandler(svc *encounter.Service) *BattleHandler {
	return &BattleHandler{svc: svc}
}

// Register mounts the routes on an authenticated group.
func (h *BattleHandler) Register(g *gin.RouterGroup) {
	g.POST("/battles/wild", h.StartWild)
	g.POST("/battles/trainer", h.StartTrainer)
	g.POST("/battles/pvp", h.StartPvP)
	g.GET("/battles/current", h.State)
	g.POST("/battles/current/actions", h.Submit)
	g.POST("/battles/current/resync", h.Resync)
	g.DELETE("/battles/current", h.Forfeit)
	g.GET("/battles/:id", h.Snapshot)
}

// StartWild handles POST /api/battles/wild.
func (h *BattleHandler) StartWild(c *gin.Context) {
	var req encounter.WildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.StartWild(c.Request.Context(), mw.GetPlayerID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// StartTrainer handles POST /api/battles/trainer.
func (h *BattleHandler) StartTrainer(c *gin.Context) {
	var req encounter.TrainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.StartTrainer(c.Request.Context(), mw.GetPlayerID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type pvpRequest struct {
	RivalID int64 `json:"rival_id" binding:"required"`
}

// StartPvP handles POST /api/battles/pvp.
func (h *BattleHandler) StartPvP(c *gin.Context) {
	var req pvpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.StartPvP(c.Request.Context(), mw.GetPlayerID(c), req.RivalID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// State handles GET /api/battles/current.
func (h *BattleHandler) State(c *gin.Context) {
	st, err := h.svc.StateFor(mw.GetPlayerID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Submit handles POST /api/battles/current/actions. A rejected action is
// still a 200; the body says why.
func (h *BattleHandler) Submit(c *gin.Context) {
	var req encounter.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, events, err := h.svc.SubmitAction(c.Request.Context(), mw.GetPlayerID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": res.Accepted, "reason": res.Reason, "events": events})
}

// Resync handles POST /api/battles/current/resync.
func (h *BattleHandler) Resync(c *gin.Context) {
	events, err := h.svc.Resync(mw.GetPlayerID(c))
	if err != nil {
		fail(c, err)
		return
	}
	st, _ := h.svc.StateFor(mw.GetPlayerID(c))
	c.JSON(http.StatusOK, gin.H{"events": events, "state": st})
}

// Forfeit handles DELETE /api/battles/current.
func (h *BattleHandler) Forfeit(c *gin.Context) {
	events, err := h.svc.Forfeit(c.Request.Context(), mw.GetPlayerID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Snapshot handles GET /api/battles/:id, reading the cached state so that
// finished battles stay visible after they are swept.
func (h *BattleHandler) Snapshot(c *gin.Context) {
	st, err := h.svc.CachedState(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
