package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/monsterbattle/game/item"
	"github.com/kasuganosora/monsterbattle/game/roster"
	mw "github.com/kasuganosora/monsterbattle/middleware"
	"github.com/kasuganosora/monsterbattle/model"
)

// RosterHandler serves the player's Pokemon and bag.
type RosterHandler struct {
	roster *roster.Store
	items  *item.Ledger
}

func NewRosterHandler(rs *roster.Store, items *item.Ledger) *RosterHandler {
	return &RosterHandler{roster: rs, items: items}
}

// Roster handles GET /api/roster.
func (h *RosterHandler) Roster(c *gin.Context) {
	ctx := c.Request.Context()
	pid := mw.GetPlayerID(c)
	party, err := h.roster.GetRoster(ctx, pid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	box, err := h.roster.GetBox(ctx, pid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if party == nil {
		party = []model.Pokemon{}
	}
	if box == nil {
		box = []model.Pokemon{}
	}
	c.JSON(http.StatusOK, gin.H{"party": party, "box": box})
}

// Inventory handles GET /api/inventory.
func (h *RosterHandler) Inventory(c *gin.Context) {
	items, err := h.items.List(c.Request.Context(), mw.GetPlayerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	c.JSON(http.StatusOK, gin.H{"inventory": items})
}
