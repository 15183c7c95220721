package encounter

import (
	"encoding/json"
	"time"

	"github.com/kasuganosora/monsterbattle/game/battle"
	"go.uber.org/zap"
)

type outbound struct {
	sess   *battle.Session
	events []battle.Event
}

// dispatch runs inside the session lock, so it only queues the batch.
func (s *Service) dispatch(sess *battle.Session, events []battle.Event) {
	if sess == nil || len(events) == 0 {
		return
	}
	ob := outbound{sess: sess, events: events}
	select {
	case <-s.done:
	case s.out <- ob:
	default:
		if !endsBattle(events) {
			s.logger.Warn("event queue full, dropping batch",
				zap.String("session_id", sess.ID()),
				zap.Int("events", len(events)))
			return
		}
		// The final batch settles the battle, so it waits for room.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			select {
			case s.out <- ob:
			case <-s.done:
			}
		}()
	}
}

func endsBattle(events []battle.Event) bool {
	for _, ev := range events {
		if _, ok := ev.(battle.EventBattleEnd); ok {
			return true
		}
	}
	return false
}

func (s *Service) publishLoop() {
	defer s.wg.Done()
	for {
		select {
		case ob := <-s.out:
			s.publish(ob)
		case <-s.done:
			for {
				select {
				case ob := <-s.out:
					s.publish(ob)
				default:
					return
				}
			}
		}
	}
}

// publish pushes a batch to subscribers, refreshes the state snapshot and
// settles a battle that just ended.
func (s *Service) publish(ob outbound) {
	ctx, cancel := s.storeCtx()
	defer cancel()
	id := ob.sess.ID()

	channels := []string{Channel(id)}
	s.mu.RLock()
	if e := s.sessions[id]; e != nil {
		for _, p := range e.players {
			channels = append(channels, PlayerChannel(p))
		}
	}
	s.mu.RUnlock()

	for _, ev := range ob.events {
		payload, err := battle.MarshalEvent(ev)
		if err != nil {
			s.logger.Error("marshal event failed", zap.String("event", ev.EventType()), zap.Error(err))
			continue
		}
		for _, ch := range channels {
			if err := s.pubsub.Publish(ctx, ch, string(payload)); err != nil {
				s.logger.Warn("publish event failed", zap.String("channel", ch), zap.Error(err))
			}
		}
	}

	st := ob.sess.PhaseState(battle.SidePlayer)
	if raw, err := json.Marshal(st); err == nil {
		if err := s.store.Set(ctx, stateKey(id), string(raw), s.snapshotTTL()); err != nil {
			s.logger.Warn("state snapshot failed", zap.String("session_id", id), zap.Error(err))
		}
	}

	if endsBattle(ob.events) {
		s.settle(ob.sess)
	}
}

func (s *Service) snapshotTTL() time.Duration {
	if g := s.cfg.Battle.EndedGracePeriod; g > 0 {
		return lockTTL + g
	}
	return lockTTL
}

// settle journals the outcome and frees the players for a new battle. It
// runs once per session; the session itself stays registered until the
// sweeper disposes it.
func (s *Service) settle(sess *battle.Session) {
	id := sess.ID()
	s.mu.Lock()
	e := s.sessions[id]
	if e == nil || e.settled {
		s.mu.Unlock()
		return
	}
	e.settled = true
	s.mu.Unlock()

	if s.journal != nil {
		if rep := sess.Report(); rep != nil {
			s.journal.RecordOutcome(id, len(sess.History())+1, sess.Type(), *rep)
		}
	}
	s.unlockPlayers(id, e.players)
	s.logger.Info("battle ended", zap.String("session_id", id))
}
