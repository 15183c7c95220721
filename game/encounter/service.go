// Package encounter owns the live battle sessions of a server: it builds
// combatants from player rosters, keeps one battle per player, fans session
// events out over pub/sub and disposes finished battles.
package encounter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/monsterbattle/cache"
	"github.com/kasuganosora/monsterbattle/config"
	"github.com/kasuganosora/monsterbattle/game/battle"
	"github.com/kasuganosora/monsterbattle/model"
	"github.com/kasuganosora/monsterbattle/scheduler"
	"go.uber.org/zap"
)

var (
	ErrAlreadyInBattle = errors.New("encounter: player is already in a battle")
	ErrNoBattle        = errors.New("encounter: player is not in a battle")
	ErrSessionNotFound = errors.New("encounter: session not found")
	ErrNoParty         = errors.New("encounter: player has no Pokemon able to fight")
	ErrBadRequest      = errors.New("encounter: bad request")
)

const (
	lockTTL     = 2 * time.Hour
	indexKey    = "battle:index"
	taskSweep   = "sweep_ended"
	taskPending = "retry_pending_captures"
)

// Channel is the pub/sub channel carrying a session's events.
func Channel(sessionID string) string { return "battle:" + sessionID }

// PlayerChannel carries the events of every battle playerID takes part in.
func PlayerChannel(playerID int64) string { return fmt.Sprintf("player:%d:battle", playerID) }

func stateKey(sessionID string) string { return "battle:state:" + sessionID }

func lockKey(playerID int64) string { return fmt.Sprintf("battle:player:%d", playerID) }

// OutcomeJournal records the final report of a battle.
type OutcomeJournal interface {
	battle.Journal
	RecordOutcome(sessionID string, seq int, bt battle.BattleType, report battle.Report)
}

// PartyMember describes one NPC Pokemon.
type PartyMember struct {
	SpeciesID int `json:"species_id" binding:"required"`
	Level     int `json:"level" binding:"required"`
}

// WildRequest starts a wild encounter.
type WildRequest struct {
	SpeciesID int    `json:"species_id" binding:"required"`
	Level     int    `json:"level" binding:"required"`
	Terrain   string `json:"terrain"`
}

// TrainerRequest starts a battle against an AI trainer.
type TrainerRequest struct {
	Name  string        `json:"name"`
	Class string        `json:"class" binding:"required"`
	Party []PartyMember `json:"party" binding:"required"`
}

// ActionRequest is the wire form of a battle action.
type ActionRequest struct {
	Type        battle.ActionType `json:"type" binding:"required"`
	MoveSlot    int               `json:"move_slot"`
	ItemID      string            `json:"item_id"`
	TargetIndex int               `json:"target_index"`
	RosterIndex int               `json:"roster_index"`
	BallID      string            `json:"ball_id"`
}

// Action converts the request into a battle action.
func (r ActionRequest) Action() (battle.Action, error) {
	return battle.NewAction(r.Type, r.MoveSlot, r.ItemID, r.TargetIndex, r.RosterIndex, r.BallID)
}

// StartResult is returned when a battle opens.
type StartResult struct {
	SessionID string            `json:"session_id"`
	Events    []battle.Event    `json:"events"`
	State     battle.PhaseState `json:"state"`
}

// IndexEntry is the cached summary of a live session.
type IndexEntry struct {
	SessionID  string            `json:"session_id"`
	BattleType battle.BattleType `json:"battle_type"`
	Players    []int64           `json:"players"`
	StartedAt  time.Time         `json:"started_at"`
}

type entry struct {
	sess    *battle.Session
	players []int64
	settled bool
}

// Service manages all live battle sessions.
type Service struct {
	cfg     config.Config
	deps    battle.Deps
	store   cache.Store
	pubsub  cache.PubSub
	journal OutcomeJournal
	pending *PendingQueue
	tasks   *scheduler.Scheduler
	newRNG  func() *rand.Rand
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
	byPlayer map[int64]string

	out     chan outbound
	done    chan struct{}
	closeMu sync.Once
	wg      sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithJournal records transitions and outcomes.
func WithJournal(j OutcomeJournal) Option { return func(s *Service) { s.journal = j } }

// WithRNG sets the source of per-session random generators.
func WithRNG(fn func() *rand.Rand) Option { return func(s *Service) { s.newRNG = fn } }

// NewService wires the service and starts its background tasks. deps.Pending
// and deps.Journal are filled in by the service.
func NewService(cfg config.Config, deps battle.Deps, store cache.Store, ps cache.PubSub, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:      cfg,
		deps:     deps,
		store:    store,
		pubsub:   ps,
		newRNG:   func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) },
		logger:   logger.Named("encounter"),
		sessions: make(map[string]*entry),
		byPlayer: make(map[int64]string),
		out:      make(chan outbound, 1024),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.pending = NewPendingQueue(store, deps.Roster, s.logger)
	s.deps.Pending = s.pending
	if s.journal != nil {
		s.deps.Journal = s.journal
	}
	s.tasks = scheduler.New(s.logger)

	s.wg.Add(1)
	go s.publishLoop()

	s.tasks.AddTicker(taskSweep, sweepInterval(cfg.Battle.EndedGracePeriod), func() { s.Sweep(time.Now()) })
	if cfg.Capture.PendingRetry > 0 {
		s.tasks.AddTicker(taskPending, cfg.Capture.PendingRetry, func() {
			ctx, cancel := s.storeCtx()
			defer cancel()
			if _, err := s.pending.Retry(ctx); err != nil {
				s.logger.Warn("pending capture retry failed", zap.Error(err))
			}
		})
	}
	return s
}

// Pending exposes the queue of captures waiting to be persisted.
func (s *Service) Pending() *PendingQueue { return s.pending }

func (s *Service) storeCtx() (context.Context, context.CancelFunc) {
	d := s.cfg.Battle.StoreTimeout
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

// StartWild opens a wild encounter for playerID.
func (s *Service) StartWild(ctx context.Context, playerID int64, req WildRequest) (*StartResult, error) {
	if err := s.checkLevel(req.Level); err != nil {
		return nil, err
	}
	rng := s.newRNG()
	wild, err := battle.GeneratePokemon(ctx, s.deps.Species, req.SpeciesID, req.Level, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	ctrl := battle.ControllerAI
	if s.cfg.Battle.WildPassive {
		ctrl = battle.ControllerPassive
	}
	opp := &battle.Combatant{Name: wild.Name, Controller: ctrl, Party: []*battle.Pokemon{wild}}
	return s.start(ctx, battle.BattleWild, req.Terrain, rng, []int64{playerID}, func(ctx context.Context) (*battle.Combatant, *battle.Combatant, error) {
		me, err := s.loadCombatant(ctx, playerID)
		return me, opp, err
	})
}

// StartTrainer opens a battle against an AI trainer.
func (s *Service) StartTrainer(ctx context.Context, playerID int64, req TrainerRequest) (*StartResult, error) {
	if len(req.Party) == 0 || len(req.Party) > model.PartySize {
		return nil, fmt.Errorf("%w: trainer party must hold 1..%d Pokemon", ErrBadRequest, model.PartySize)
	}
	rng := s.newRNG()
	opp := &battle.Combatant{Name: req.Name, Controller: battle.ControllerAI, TrainerClass: req.Class}
	if opp.Name == "" {
		opp.Name = req.Class
	}
	for _, m := range req.Party {
		if err := s.checkLevel(m.Level); err != nil {
			return nil, err
		}
		p, err := battle.GeneratePokemon(ctx, s.deps.Species, m.SpeciesID, m.Level, rng)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		opp.Party = append(opp.Party, p)
	}
	return s.start(ctx, battle.BattleTrainer, "", rng, []int64{playerID}, func(ctx context.Context) (*battle.Combatant, *battle.Combatant, error) {
		me, err := s.loadCombatant(ctx, playerID)
		return me, opp, err
	})
}

// StartPvP opens a battle between two players.
func (s *Service) StartPvP(ctx context.Context, playerID, rivalID int64) (*StartResult, error) {
	if playerID == rivalID {
		return nil, fmt.Errorf("%w: cannot battle yourself", ErrBadRequest)
	}
	return s.start(ctx, battle.BattlePvP, "", s.newRNG(), []int64{playerID, rivalID}, func(ctx context.Context) (*battle.Combatant, *battle.Combatant, error) {
		a, err := s.loadCombatant(ctx, playerID)
		if err != nil {
			return nil, nil, err
		}
		b, err := s.loadCombatant(ctx, rivalID)
		return a, b, err
	})
}

func (s *Service) checkLevel(level int) error {
	maxLevel := s.cfg.Reward.MaxLevel
	if maxLevel <= 0 {
		maxLevel = 100
	}
	if level < 1 || level > maxLevel {
		return fmt.Errorf("%w: level must be 1..%d", ErrBadRequest, maxLevel)
	}
	return nil
}

func (s *Service) loadCombatant(ctx context.Context, playerID int64) (*battle.Combatant, error) {
	entries, err := s.deps.Roster.GetRoster(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("%w: load roster: %v", battle.ErrExternal, err)
	}
	c := &battle.Combatant{OwnerID: playerID, Name: fmt.Sprintf("player-%d", playerID), Controller: battle.ControllerHuman}
	for _, e := range entries {
		p, err := battle.NewPokemon(ctx, s.deps.Species, e)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", battle.ErrExternal, err)
		}
		c.Party = append(c.Party, p)
	}
	if !c.HasUsable() {
		return nil, ErrNoParty
	}
	return c, nil
}

type sidesFn func(ctx context.Context) (*battle.Combatant, *battle.Combatant, error)

func (s *Service) start(ctx context.Context, bt battle.BattleType, terrain string, rng *rand.Rand, players []int64, build sidesFn) (*StartResult, error) {
	id := uuid.NewString()
	held, err := s.lockPlayers(ctx, id, players)
	if err != nil {
		return nil, err
	}
	release := func() { s.unlockPlayers(id, held) }

	me, opp, err := build(ctx)
	if err != nil {
		release()
		return nil, err
	}

	var sess *battle.Session
	sess, err = battle.NewSession(battle.SessionConfig{
		ID:      id,
		Type:    bt,
		Terrain: terrain,
		Battle:  s.cfg.Battle,
		Capture: s.cfg.Capture,
		Reward:  s.cfg.Reward,
		RNG:     rng,
		Logger:  s.logger,
		Sink: func(_ string, events []battle.Event) {
			s.dispatch(sess, events)
		},
	}, s.deps, me, opp)
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	s.mu.Lock()
	s.sessions[id] = &entry{sess: sess, players: players}
	for _, p := range players {
		s.byPlayer[p] = id
	}
	s.mu.Unlock()

	idx, _ := json.Marshal(IndexEntry{SessionID: id, BattleType: bt, Players: players, StartedAt: time.Now()})
	if err := s.store.HSet(ctx, indexKey, id, string(idx)); err != nil {
		s.logger.Warn("index session failed", zap.String("session_id", id), zap.Error(err))
	}

	events, err := sess.Start(ctx)
	if err != nil {
		s.logger.Error("battle failed to start", zap.String("session_id", id), zap.Error(err))
	}
	s.logger.Info("battle started",
		zap.String("session_id", id),
		zap.String("battle_type", string(bt)),
		zap.Int64s("players", players))
	return &StartResult{SessionID: id, Events: events, State: sess.PhaseState(battle.SidePlayer)}, err
}

func (s *Service) lockPlayers(ctx context.Context, sessionID string, players []int64) ([]int64, error) {
	var held []int64
	for _, p := range players {
		ok, err := s.store.SetNX(ctx, lockKey(p), sessionID, lockTTL)
		if err != nil || !ok {
			s.unlockPlayers(sessionID, held)
			if err != nil {
				return nil, fmt.Errorf("%w: lock player: %v", battle.ErrExternal, err)
			}
			return nil, fmt.Errorf("%w: player %d", ErrAlreadyInBattle, p)
		}
		held = append(held, p)
	}
	return held, nil
}

// unlockPlayers releases the battle locks still owned by sessionID.
func (s *Service) unlockPlayers(sessionID string, players []int64) {
	ctx, cancel := s.storeCtx()
	defer cancel()
	for _, p := range players {
		v, err := s.store.Get(ctx, lockKey(p))
		if err != nil || v != sessionID {
			continue
		}
		if err := s.store.Del(ctx, lockKey(p)); err != nil {
			s.logger.Warn("release player lock failed", zap.Int64("player_id", p), zap.Error(err))
		}
	}
}

// Session returns a live session by id.
func (s *Service) Session(sessionID string) (*battle.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.sess, nil
}

// SessionOf returns the battle playerID is in and the side they control.
func (s *Service) SessionOf(playerID int64) (*battle.Session, battle.Side, error) {
	s.mu.RLock()
	id, ok := s.byPlayer[playerID]
	var e *entry
	if ok {
		e = s.sessions[id]
	}
	s.mu.RUnlock()
	if e == nil {
		return nil, 0, ErrNoBattle
	}
	side, ok := e.sess.SideOf(playerID)
	if !ok {
		return nil, 0, ErrNoBattle
	}
	return e.sess, side, nil
}

// SubmitAction submits req for the battle playerID is in.
func (s *Service) SubmitAction(ctx context.Context, playerID int64, req ActionRequest) (battle.SubmitResult, []battle.Event, error) {
	sess, side, err := s.SessionOf(playerID)
	if err != nil {
		return battle.SubmitResult{}, nil, err
	}
	action, err := req.Action()
	if err != nil {
		return battle.SubmitResult{}, nil, err
	}
	res, events := sess.SubmitAction(ctx, side, action)
	return res, events, nil
}

// PhaseState summarizes a session from side's point of view.
func (s *Service) PhaseState(sessionID string, side battle.Side) (battle.PhaseState, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return battle.PhaseState{}, err
	}
	return sess.PhaseState(side), nil
}

// StateFor summarizes playerID's battle from their side.
func (s *Service) StateFor(playerID int64) (battle.PhaseState, error) {
	sess, side, err := s.SessionOf(playerID)
	if err != nil {
		return battle.PhaseState{}, err
	}
	return sess.PhaseState(side), nil
}

// CachedState reads the last state snapshot written for a session. It
// survives the session being swept until the snapshot expires.
func (s *Service) CachedState(ctx context.Context, sessionID string) (battle.PhaseState, error) {
	var st battle.PhaseState
	raw, err := s.store.Get(ctx, stateKey(sessionID))
	if err != nil {
		if cache.IsNotFound(err) {
			return st, ErrSessionNotFound
		}
		return st, err
	}
	err = json.Unmarshal([]byte(raw), &st)
	return st, err
}

// Resync re-announces the phase of playerID's battle.
func (s *Service) Resync(playerID int64) ([]battle.Event, error) {
	sess, _, err := s.SessionOf(playerID)
	if err != nil {
		return nil, err
	}
	_, events := sess.Resync()
	return events, nil
}

// Forfeit ends playerID's battle as their loss.
func (s *Service) Forfeit(ctx context.Context, playerID int64) ([]battle.Event, error) {
	sess, side, err := s.SessionOf(playerID)
	if err != nil {
		return nil, err
	}
	return sess.Forfeit(ctx, side)
}

// Active lists the indexed live sessions.
func (s *Service) Active(ctx context.Context) ([]IndexEntry, error) {
	all, err := s.store.HGetAll(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	out := make([]IndexEntry, 0, len(all))
	for id, raw := range all {
		var e IndexEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.logger.Warn("bad index entry", zap.String("session_id", id), zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Subscribe streams the encoded events of a session.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan *cache.Message, func(), error) {
	if _, err := s.Session(sessionID); err != nil {
		return nil, nil, err
	}
	return s.pubsub.Subscribe(ctx, Channel(sessionID))
}

// SubscribePlayer streams the encoded events of playerID's battles, including
// ones that start after the call.
func (s *Service) SubscribePlayer(ctx context.Context, playerID int64) (<-chan *cache.Message, func(), error) {
	return s.pubsub.Subscribe(ctx, PlayerChannel(playerID))
}

// Count returns the number of registered sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close disposes every session and stops the background tasks.
func (s *Service) Close() {
	s.closeMu.Do(func() {
		s.tasks.Stop()
		s.mu.Lock()
		entries := make([]*entry, 0, len(s.sessions))
		for id, e := range s.sessions {
			entries = append(entries, e)
			delete(s.sessions, id)
		}
		s.byPlayer = make(map[int64]string)
		s.mu.Unlock()

		for _, e := range entries {
			e.sess.Dispose()
			s.unlockPlayers(e.sess.ID(), e.players)
		}
		close(s.done)
		s.wg.Wait()
		s.logger.Info("encounter service closed", zap.Int("sessions", len(entries)))
	})
}
