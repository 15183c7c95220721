package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kasuganosora/monsterbattle/game/battle"
	"github.com/kasuganosora/monsterbattle/game/encounter"
)

// BattleHandlers serves the battle message types.
type BattleHandlers struct {
	svc *encounter.Service
}

func NewBattleHandlers(svc *encounter.Service) *BattleHandlers {
	return &BattleHandlers{svc: svc}
}

func (bh *BattleHandlers) RegisterHandlers(r *Router) {
	r.On("battle_start_wild", bh.HandleStartWild)
	r.On("battle_start_trainer", bh.HandleStartTrainer)
	r.On("battle_start_pvp", bh.HandleStartPvP)
	r.On("battle_action", bh.HandleAction)
	r.On("battle_state", bh.HandleState)
	r.On("battle_resync", bh.HandleResync)
	r.On("battle_forfeit", bh.HandleForfeit)
}

type startedPayload struct {
	SessionID string            `json:"session_id"`
	State     battle.PhaseState `json:"state"`
}

// Events are not echoed in replies; they arrive as battle_event packets.
func (bh *BattleHandlers) started(c *Client, res *encounter.StartResult) {
	c.SendJSON("battle_started", startedPayload{SessionID: res.SessionID, State: res.State})
}

func (bh *BattleHandlers) HandleStartWild(ctx context.Context, c *Client, raw json.RawMessage) error {
	var req encounter.WildRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(c, "invalid payload")
		return nil
	}
	res, err := bh.svc.StartWild(ctx, c.PlayerID, req)
	if err != nil {
		return replyError(c, err)
	}
	bh.started(c, res)
	return nil
}

func (bh *BattleHandlers) HandleStartTrainer(ctx context.Context, c *Client, raw json.RawMessage) error {
	var req encounter.TrainerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(c, "invalid payload")
		return nil
	}
	res, err := bh.svc.StartTrainer(ctx, c.PlayerID, req)
	if err != nil {
		return replyError(c, err)
	}
	bh.started(c, res)
	return nil
}

func (bh *BattleHandlers) HandleStartPvP(ctx context.Context, c *Client, raw json.RawMessage) error {
	var req struct {
		RivalID int64 `json:"rival_id"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.RivalID == 0 {
		sendError(c, "invalid payload")
		return nil
	}
	res, err := bh.svc.StartPvP(ctx, c.PlayerID, req.RivalID)
	if err != nil {
		return replyError(c, err)
	}
	bh.started(c, res)
	return nil
}

func (bh *BattleHandlers) HandleAction(ctx context.Context, c *Client, raw json.RawMessage) error {
	var req encounter.ActionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		sendError(c, "invalid payload")
		return nil
	}
	res, _, err := bh.svc.SubmitAction(ctx, c.PlayerID, req)
	if err != nil {
		return replyError(c, err)
	}
	c.SendJSON("action_result", res)
	return nil
}

func (bh *BattleHandlers) HandleState(_ context.Context, c *Client, _ json.RawMessage) error {
	st, err := bh.svc.StateFor(c.PlayerID)
	if err != nil {
		return replyError(c, err)
	}
	c.SendJSON("battle_state", st)
	return nil
}

func (bh *BattleHandlers) HandleResync(_ context.Context, c *Client, _ json.RawMessage) error {
	if _, err := bh.svc.Resync(c.PlayerID); err != nil {
		return replyError(c, err)
	}
	st, err := bh.svc.StateFor(c.PlayerID)
	if err != nil {
		return replyError(c, err)
	}
	c.SendJSON("battle_state", st)
	return nil
}

func (bh *BattleHandlers) HandleForfeit(ctx context.Context, c *Client, _ json.RawMessage) error {
	if _, err := bh.svc.Forfeit(ctx, c.PlayerID); err != nil {
		return replyError(c, err)
	}
	return nil
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// replyError tells the client why a request failed. Only unexpected errors
// are returned for the router to log.
func replyError(c *Client, err error) error {
	code := codeOf(err)
	msg := err.Error()
	if code == "internal" {
		msg = "internal error"
	}
	c.SendJSON("error", errorPayload{Code: code, Message: msg})
	if code == "internal" || code == "unavailable" {
		return err
	}
	return nil
}

func codeOf(err error) string {
	switch {
	case errors.Is(err, encounter.ErrAlreadyInBattle):
		return "already_in_battle"
	case errors.Is(err, battle.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, encounter.ErrNoBattle), errors.Is(err, encounter.ErrSessionNotFound):
		return "no_battle"
	case errors.Is(err, encounter.ErrNoParty):
		return "no_party"
	case errors.Is(err, encounter.ErrBadRequest), errors.Is(err, battle.ErrInvalidAction):
		return "bad_request"
	case errors.Is(err, battle.ErrExternal):
		return "unavailable"
	}
	return "internal"
}
