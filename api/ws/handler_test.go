package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
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
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const catalog = `
species:
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
`

const player int64 = 21

type wsEnv struct {
	srv  *httptest.Server
	sec  config.SecurityConfig
	conn *websocket.Conn
	seq  uint64
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	store, ps := testutil.SetupTestCache(t)
	cat, err := species.Parse([]byte(catalog))
	require.NoError(t, err)
	require.NoError(t, db.Create(&model.Pokemon{
		OwnerID: player, Location: model.LocationParty, SpeciesID: 3, Level: 10, HP: 999,
		Moves: datatypes.NewJSONType([]model.MoveRecord{{MoveID: 1, PP: 35, MaxPP: 35}}),
	}).Error)

	cfg := config.Default()
	cfg.Battle.WildPassive = true
	cfg.Battle.AIThinkDelay = 0
	cfg.Battle.DecisionTimeout = 0
	cfg.Capture.PendingRetry = 0
	// Connection goroutines may outlive the test, so they get a no-op logger.
	logger := zap.NewNop()
	svc := encounter.NewService(cfg, battle.Deps{Species: cat, Roster: roster.NewStore(db, 0, nil), Items: item.NewLedger(db, "money", nil)},
		store, ps, logger, encounter.WithRNG(func() *rand.Rand { return rand.New(rand.NewSource(5)) }))
	t.Cleanup(svc.Close)

	router := NewRouter(logger)
	NewBattleHandlers(svc).RegisterHandlers(router)
	hub := NewHub(logger)
	sec := config.SecurityConfig{JWTSecret: "ws-test-secret", TokenTTL: time.Hour}

	r := gin.New()
	r.GET("/api/ws", mw.Auth(sec, store), NewHandler(svc, sec, hub, router, logger).ServeWS)
	env := &wsEnv{srv: httptest.NewServer(r), sec: sec}
	t.Cleanup(env.srv.Close)
	t.Cleanup(hub.CloseAll)
	return env
}

func (e *wsEnv) dial(t *testing.T) {
	t.Helper()
	token, err := mw.GenerateToken(player, e.sec.JWTSecret, e.sec.TokenTTL)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	e.conn = conn
}

func (e *wsEnv) send(t *testing.T, msgType string, payload any) {
	t.Helper()
	e.seq++
	p, _ := json.Marshal(payload)
	require.NoError(t, e.conn.WriteJSON(Packet{Seq: e.seq, Type: msgType, Payload: p}))
}

// await reads packets until one of msgType arrives.
func (e *wsEnv) await(t *testing.T, msgType string) Packet {
	t.Helper()
	require.NoError(t, e.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var pkt Packet
		require.NoError(t, e.conn.ReadJSON(&pkt))
		if pkt.Type == msgType {
			return pkt
		}
	}
}

func TestServeWS_RequiresToken(t *testing.T) {
	env := newWSEnv(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestServeWS_WildBattleFlow(t *testing.T) {
	env := newWSEnv(t)
	env.dial(t)

	env.send(t, "battle_start_wild", map[string]any{"species_id": 3, "level": 2})
	started := env.await(t, "battle_started")
	var sp startedPayload
	require.NoError(t, json.Unmarshal(started.Payload, &sp))
	assert.NotEmpty(t, sp.SessionID)
	assert.Equal(t, battle.PhaseActionSelection, sp.State.Phase)

	env.send(t, "battle_action", map[string]any{"type": "attack", "move_slot": 9})
	res := env.await(t, "action_result")
	var sr battle.SubmitResult
	require.NoError(t, json.Unmarshal(res.Payload, &sr))
	assert.False(t, sr.Accepted)
	assert.NotEmpty(t, sr.Reason)

	env.send(t, "battle_start_wild", map[string]any{"species_id": 3, "level": 2})
	errPkt := env.await(t, "error")
	var ep errorPayload
	require.NoError(t, json.Unmarshal(errPkt.Payload, &ep))
	assert.Equal(t, "already_in_battle", ep.Code)

	env.send(t, "battle_forfeit", nil)
	for {
		ev := env.await(t, "battle_event")
		if strings.Contains(string(ev.Payload), `"type":"battle_end"`) {
			break
		}
	}
}

func TestServeWS_StateWithoutBattle(t *testing.T) {
	env := newWSEnv(t)
	env.dial(t)

	env.send(t, "battle_state", nil)
	errPkt := env.await(t, "error")
	var ep errorPayload
	require.NoError(t, json.Unmarshal(errPkt.Payload, &ep))
	assert.Equal(t, "no_battle", ep.Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "bad_request", codeOf(encounter.ErrBadRequest))
	assert.Equal(t, "unavailable", codeOf(battle.ErrExternal))
	assert.Equal(t, "internal", codeOf(context.Canceled))
}
