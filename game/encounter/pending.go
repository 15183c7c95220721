package encounter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kasuganosora/monsterbattle/cache"
	"github.com/kasuganosora/monsterbattle/game/battle"
	"github.com/kasuganosora/monsterbattle/model"
	"go.uber.org/zap"
)

const pendingKey = "battle:pending_captures"

// PendingQueue holds captured Pokemon whose first save failed. Entries are
// JSON in a cache list and are retried in FIFO order. When the cache is down
// too, entries spill into process memory until the next Retry.
type PendingQueue struct {
	store  cache.Store
	roster battle.RosterStore
	logger *zap.Logger

	mu    sync.Mutex
	spill []string
}

func NewPendingQueue(store cache.Store, roster battle.RosterStore, logger *zap.Logger) *PendingQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PendingQueue{store: store, roster: roster, logger: logger}
}

// Enqueue implements battle.PendingCaptures.
func (q *PendingQueue) Enqueue(ctx context.Context, entity *model.Pokemon) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	if err := q.store.RPush(ctx, pendingKey, string(raw)); err != nil {
		q.logger.Warn("pending queue unavailable, holding capture in memory",
			zap.Int64("owner_id", entity.OwnerID), zap.Error(err))
		q.hold(string(raw))
	}
	return nil
}

func (q *PendingQueue) hold(raw string) {
	q.mu.Lock()
	q.spill = append(q.spill, raw)
	q.mu.Unlock()
}

// Held returns how many captures live only in process memory.
func (q *PendingQueue) Held() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.spill)
}

// Len returns the number of waiting captures, held ones included.
func (q *PendingQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.store.LLen(ctx, pendingKey)
	return n + int64(q.Held()), err
}

// flush moves held captures back into the cache list.
func (q *PendingQueue) flush(ctx context.Context) {
	q.mu.Lock()
	held := q.spill
	q.spill = nil
	q.mu.Unlock()
	for i, raw := range held {
		if err := q.store.RPush(ctx, pendingKey, raw); err != nil {
			q.mu.Lock()
			q.spill = append(held[i:len(held):len(held)], q.spill...)
			q.mu.Unlock()
			return
		}
	}
}

// Peek returns the waiting captures without removing them.
func (q *PendingQueue) Peek(ctx context.Context) ([]model.Pokemon, error) {
	raws, err := q.store.LRange(ctx, pendingKey, 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]model.Pokemon, 0, len(raws))
	for _, r := range raws {
		var p model.Pokemon
		if err := json.Unmarshal([]byte(r), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Retry persists queued captures until one fails or the queue is empty. A
// failed entry goes back to the tail. It returns how many were saved.
func (q *PendingQueue) Retry(ctx context.Context) (int, error) {
	q.flush(ctx)
	n, err := q.store.LLen(ctx, pendingKey)
	if err != nil {
		return 0, err
	}
	saved := 0
	for i := int64(0); i < n; i++ {
		raw, err := q.store.LPop(ctx, pendingKey)
		if cache.IsNotFound(err) {
			break
		}
		if err != nil {
			return saved, err
		}
		var entity model.Pokemon
		if err := json.Unmarshal([]byte(raw), &entity); err != nil {
			q.logger.Error("discarding corrupt pending capture", zap.String("raw", raw), zap.Error(err))
			continue
		}
		entity.ID = 0
		id, err := q.roster.PersistCapturedEntity(ctx, &entity)
		if err != nil {
			if perr := q.store.RPush(ctx, pendingKey, raw); perr != nil {
				q.logger.Warn("requeue pending capture failed, holding in memory",
					zap.Int64("owner_id", entity.OwnerID), zap.Error(perr))
				q.hold(raw)
			}
			return saved, fmt.Errorf("%w: persist pending capture: %v", battle.ErrExternal, err)
		}
		saved++
		q.logger.Info("pending capture saved",
			zap.Int64("owner_id", entity.OwnerID),
			zap.Int("species_id", entity.SpeciesID),
			zap.Int64("entry_id", id))
	}
	return saved, nil
}
