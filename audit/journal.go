// Package audit journals battle phase transitions and outcomes to the
// database without blocking the battle sessions that produce them.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/monsterbattle/game/battle"
	"github.com/kasuganosora/monsterbattle/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// TriggerOutcome marks the journal row written once a battle has ended.
const TriggerOutcome = "outcome"

// Journal writes battle journal rows asynchronously in batches.
// It implements battle.Journal.
type Journal struct {
	db       *gorm.DB
	ch       chan *model.BattleJournal
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a Journal and starts its background writer.
func New(db *gorm.DB, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Journal{
		db:     db,
		ch:     make(chan *model.BattleJournal, 1024),
		stopCh: make(chan struct{}),
		logger: logger.Named("journal"),
	}
	j.wg.Add(1)
	go j.worker()
	return j
}

// Record enqueues one phase transition. It never blocks: when the buffer is
// full the row is dropped with a warning.
func (j *Journal) Record(sessionID string, seq int, bt battle.BattleType, t battle.PhaseTransition) {
	j.enqueue(&model.BattleJournal{
		SessionID:  sessionID,
		Seq:        seq,
		BattleType: string(bt),
		FromPhase:  string(t.From),
		ToPhase:    string(t.To),
		Trigger:    t.Trigger,
		CreatedAt:  t.At,
	})
}

// RecordOutcome enqueues the final report of a battle.
func (j *Journal) RecordOutcome(sessionID string, seq int, bt battle.BattleType, report battle.Report) {
	data, err := json.Marshal(report)
	if err != nil {
		j.logger.Warn("marshal battle report failed", zap.String("session_id", sessionID), zap.Error(err))
		data = []byte("{}")
	}
	j.enqueue(&model.BattleJournal{
		SessionID:  sessionID,
		Seq:        seq,
		BattleType: string(bt),
		ToPhase:    string(battle.PhaseEnded),
		Trigger:    TriggerOutcome,
		Data:       datatypes.JSON(data),
	})
}

func (j *Journal) enqueue(row *model.BattleJournal) {
	select {
	case j.ch <- row:
	default:
		j.logger.Warn("journal channel full, dropping entry",
			zap.String("session_id", row.SessionID),
			zap.String("trigger", row.Trigger))
	}
}

// Stop flushes buffered rows and waits for the writer to finish.
func (j *Journal) Stop(_ context.Context) {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *Journal) worker() {
	defer j.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.BattleJournal, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := j.db.Create(&batch).Error; err != nil {
			j.logger.Error("journal batch write failed", zap.Int("rows", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-j.ch:
			batch = append(batch, row)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-j.stopCh:
			for {
				select {
				case row := <-j.ch:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}
