package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/monsterbattle/api/rest"
	"github.com/kasuganosora/monsterbattle/config"
	"github.com/kasuganosora/monsterbattle/game/battle"
	"github.com/kasuganosora/monsterbattle/game/encounter"
	"github.com/kasuganosora/monsterbattle/game/item"
	"github.com/kasuganosora/monsterbattle/game/roster"
	"github.com/kasuganosora/monsterbattle/game/species"
	mw "github.com/kasuganosora/monsterbattle/middleware"
	"github.com/kasuganosora/monsterbattle/model"
	"github.com/kasuganosora/monsterbattle/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testCatalog = `
species:
  - id: 1
    key: sproutle
    types: [grass]
    base_stats: {hp: 45, atk: 49, def: 49, spa: 65, spd: 65, spe: 45}
    capture_rate: 45
    base_exp: 64
    growth_rate: medium_fast
    abilities: [overgrow]
    gender_ratio: 0.125
    moves_by_level:
      - {level: 1, move: 1}
  - id: 3
    key: zippet
    types: [normal]
    base_stats: {hp: 40, atk: 45, def: 40, spa: 35, spd: 35, spe: 250}
    capture_rate: 255
    base_exp: 50
    growth_rate: medium_fast
    abilities: [run_away]
    gender_ratio: -1
    moves_by_level:
      - {level: 1, move: 1}
moves:
  - {id: 1, key: tackle, type: normal, category: physical, power: 40, accuracy: 100, pp: 35}
items:
  - {id: poke_ball, kind: ball}
  - {id: potion, kind: medicine, heal: 20}
`

const secret = "rest-test-secret"

func init() { gin.SetMode(gin.TestMode) }

type env struct {
	r   *gin.Engine
	db  *gorm.DB
	svc *encounter.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	store, ps := testutil.SetupTestCache(t)
	cat, err := species.Parse([]byte(testCatalog))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Security.JWTSecret = secret
	cfg.Battle.WildPassive = true
	cfg.Battle.AIThinkDelay = 0
	cfg.Battle.DecisionTimeout = 0
	cfg.Capture.PendingRetry = 0

	rs := roster.NewStore(db, 0, nil)
	ledger := item.NewLedger(db, cfg.Reward.CurrencyItemID, nil)
	svc := encounter.NewService(cfg, battle.Deps{Species: cat, Roster: rs, Items: ledger}, store, ps, nil,
		encounter.WithRNG(func() *rand.Rand { return rand.New(rand.NewSource(1)) }))
	t.Cleanup(svc.Close)

	r := gin.New()
	authH := rest.NewAuthHandler(store, cfg.Security)
	r.POST("/api/auth/token", authH.DevToken)
	api := r.Group("/api", mw.Auth(cfg.Security, store))
	api.POST("/auth/logout", authH.Logout)
	rest.NewBattleHandler(svc).Register(api)
	rosterH := rest.NewRosterHandler(rs, ledger)
	api.GET("/roster", rosterH.Roster)
	api.GET("/inventory", rosterH.Inventory)
	rest.NewAdminHandler(svc, nil).Register(r.Group("/api/admin", mw.IPWhitelist([]string{"10.0.0.0/8"})))

	return &env{r: r, db: db, svc: svc}
}

func (e *env) give(t *testing.T, owner int64) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Pokemon{
		OwnerID: owner, Location: model.LocationParty, SpeciesID: 1, Level: 10, HP: 999,
		Moves: datatypes.NewJSONType([]model.MoveRecord{{MoveID: 1, PP: 35, MaxPP: 35}}),
	}).Error)
}

func (e *env) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, player int64) string {
	t.Helper()
	tok, err := mw.GenerateToken(player, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestBattle_RequiresAuth(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/battles/current", nil, "").Code)
}

func TestBattle_WildLifecycle(t *testing.T) {
	e := newEnv(t)
	e.give(t, 1)
	tok := token(t, 1)

	w := e.do(http.MethodGet, "/api/battles/current", nil, tok)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/api/battles/wild", map[string]any{"species_id": 3, "level": 3}, tok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var started struct {
		SessionID string            `json:"session_id"`
		State     battle.PhaseState `json:"state"`
	}
	decode(t, w, &started)
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, battle.PhaseActionSelection, started.State.Phase)

	w = e.do(http.MethodPost, "/api/battles/wild", map[string]any{"species_id": 3, "level": 3}, tok)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodGet, "/api/battles/current", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	var st battle.PhaseState
	decode(t, w, &st)
	assert.Equal(t, started.SessionID, st.SessionID)
	assert.True(t, st.CanAct)

	w = e.do(http.MethodPost, "/api/battles/current/actions", map[string]any{"type": "attack", "move_slot": 9}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	var sub struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason"`
	}
	decode(t, w, &sub)
	assert.False(t, sub.Accepted)
	assert.Equal(t, battle.ReasonBadMoveSlot, sub.Reason)

	w = e.do(http.MethodPost, "/api/battles/current/actions", map[string]any{"type": "teleport"}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/battles/current/resync", nil, tok)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodDelete, "/api/battles/current", nil, tok)
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodDelete, "/api/battles/current", nil, tok)
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Eventually(t, func() bool {
		w := e.do(http.MethodGet, "/api/battles/"+started.SessionID, nil, tok)
		if w.Code != http.StatusOK {
			return false
		}
		var snap battle.PhaseState
		_ = json.Unmarshal(w.Body.Bytes(), &snap)
		return snap.Phase == battle.PhaseEnded
	}, time.Second, 10*time.Millisecond)
}

func TestBattle_StartValidation(t *testing.T) {
	e := newEnv(t)
	tok := token(t, 1)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/battles/wild", map[string]any{"level": 3}, tok).Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		e.do(http.MethodPost, "/api/battles/wild", map[string]any{"species_id": 3, "level": 3}, tok).Code)
	assert.Equal(t, http.StatusBadRequest,
		e.do(http.MethodPost, "/api/battles/pvp", map[string]any{"rival_id": 1}, tok).Code)
	assert.Equal(t, http.StatusBadRequest,
		e.do(http.MethodPost, "/api/battles/trainer", map[string]any{"class": "youngster", "party": []any{}}, tok).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/battles/missing", nil, tok).Code)
}

func TestBattle_TrainerLeadSelection(t *testing.T) {
	e := newEnv(t)
	e.give(t, 1)
	tok := token(t, 1)

	w := e.do(http.MethodPost, "/api/battles/trainer", map[string]any{
		"class": "youngster",
		"party": []map[string]int{{"species_id": 3, "level": 2}},
	}, tok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/battles/current/actions", map[string]any{"type": "switch", "roster_index": 0}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	var sub struct {
		Accepted bool `json:"accepted"`
	}
	decode(t, w, &sub)
	assert.True(t, sub.Accepted)
}

func TestRosterAndInventory(t *testing.T) {
	e := newEnv(t)
	e.give(t, 1)
	require.NoError(t, item.NewLedger(e.db, "money", nil).AddItem(context.Background(), 1, "poke_ball", 3))
	tok := token(t, 1)

	w := e.do(http.MethodGet, "/api/roster", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	var ro struct {
		Party []model.Pokemon `json:"party"`
		Box   []model.Pokemon `json:"box"`
	}
	decode(t, w, &ro)
	assert.Len(t, ro.Party, 1)
	assert.Empty(t, ro.Box)

	w = e.do(http.MethodGet, "/api/inventory", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "poke_ball")
}

func TestAuth_DevTokenAndLogout(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/api/auth/token", map[string]any{"player_id": 5}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Token string `json:"token"`
	}
	decode(t, w, &out)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/roster", nil, out.Token).Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodPost, "/api/auth/logout", nil, out.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/roster", nil, out.Token).Code)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/auth/token", map[string]any{}, "").Code)
}

func TestAdmin_Allowlist(t *testing.T) {
	e := newEnv(t)
	e.give(t, 1)
	_, err := e.svc.StartWild(context.Background(), 1, encounter.WildRequest{SpeciesID: 3, Level: 3})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/battles", nil)
	req.Header.Set("X-Real-IP", "192.168.0.9")
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/battles", nil)
	req.Header.Set("X-Real-IP", "10.1.2.3")
	w = httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Count int `json:"count"`
		Live  int `json:"live"`
	}
	decode(t, w, &out)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, 1, out.Live)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/pending-captures/retry", nil)
	req.Header.Set("X-Real-IP", "10.1.2.3")
	w = httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"saved":0,"remaining":0}`, w.Body.String())
}
