package model

import (
	"time"

	"gorm.io/datatypes"
)

// BattleJournal records one phase transition or battle outcome.
type BattleJournal struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string         `gorm:"index:idx_journal_session;size:36;not null" json:"session_id"`
	Seq        int            `gorm:"not null" json:"seq"`
	BattleType string         `gorm:"size:8" json:"battle_type"`
	FromPhase  string         `gorm:"size:24" json:"from_phase"`
	ToPhase    string         `gorm:"size:24" json:"to_phase"`
	Trigger    string         `gorm:"size:32;not null" json:"trigger"`
	Data       datatypes.JSON `json:"data"`
	CreatedAt  time.Time      `gorm:"index:idx_journal_created;autoCreateTime:milli" json:"created_at"`
}

func (BattleJournal) TableName() string { return "battle_journal" }
