package encounter

import (
	"time"

	"go.uber.org/zap"
)

func sweepInterval(grace time.Duration) time.Duration {
	if grace <= 0 {
		return time.Minute
	}
	return max(grace/2, 10*time.Millisecond)
}

// Sweep disposes sessions that ended at least one grace period before now
// and returns how many were removed.
func (s *Service) Sweep(now time.Time) int {
	grace := s.cfg.Battle.EndedGracePeriod
	s.mu.RLock()
	candidates := make([]*entry, 0)
	for _, e := range s.sessions {
		candidates = append(candidates, e)
	}
	s.mu.RUnlock()

	var expired []*entry
	for _, e := range candidates {
		ended, at := e.sess.Ended()
		if ended && !now.Before(at.Add(grace)) {
			expired = append(expired, e)
		}
	}
	if len(expired) == 0 {
		return 0
	}
	// Normally a no-op; covers a final batch that never reached the publisher.
	for _, e := range expired {
		s.settle(e.sess)
	}

	s.mu.Lock()
	for _, e := range expired {
		id := e.sess.ID()
		delete(s.sessions, id)
		for _, p := range e.players {
			if s.byPlayer[p] == id {
				delete(s.byPlayer, p)
			}
		}
	}
	s.mu.Unlock()

	ctx, cancel := s.storeCtx()
	defer cancel()
	for _, e := range expired {
		id := e.sess.ID()
		e.sess.Dispose()
		s.unlockPlayers(id, e.players)
		if err := s.store.HDel(ctx, indexKey, id); err != nil {
			s.logger.Warn("unindex session failed", zap.String("session_id", id), zap.Error(err))
		}
		s.logger.Debug("session swept", zap.String("session_id", id))
	}
	return len(expired)
}
