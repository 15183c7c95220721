package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/monsterbattle/game/battle"
	"github.com/kasuganosora/monsterbattle/game/encounter"
)

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, encounter.ErrAlreadyInBattle), errors.Is(err, battle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, encounter.ErrNoBattle), errors.Is(err, encounter.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, encounter.ErrNoParty):
		return http.StatusUnprocessableEntity
	case errors.Is(err, encounter.ErrBadRequest), errors.Is(err, battle.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, battle.ErrExternal):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}
