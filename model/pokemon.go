package model

import (
	"time"

	"gorm.io/datatypes"
)

// Roster locations.
const (
	LocationParty = "party"
	LocationBox   = "box"
)

// PartySize is the maximum number of Pokemon in a player's active roster.
const PartySize = 6

// StatBlock is the six-stat layout shared by base stats, IVs, EVs and
// computed stats.
type StatBlock struct {
	HP  int `json:"hp" yaml:"hp"`
	Atk int `json:"atk" yaml:"atk"`
	Def int `json:"def" yaml:"def"`
	SpA int `json:"spa" yaml:"spa"`
	SpD int `json:"spd" yaml:"spd"`
	Spe int `json:"spe" yaml:"spe"`
}

// MoveRecord is a learned move with its remaining uses.
type MoveRecord struct {
	MoveID int `json:"move_id"`
	PP     int `json:"pp"`
	MaxPP  int `json:"max_pp"`
}

// Pokemon is a persisted roster entry. Battles work on a transient copy and
// write back through the roster store at commit time.
type Pokemon struct {
	ID        int64                            `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   int64                            `gorm:"index:idx_owner_location;not null" json:"owner_id"`
	Location  string                           `gorm:"index:idx_owner_location;size:8;not null;default:party" json:"location"`
	Slot      int                              `gorm:"default:0" json:"slot"`
	SpeciesID int                              `gorm:"not null" json:"species_id"`
	Nickname  string                           `gorm:"size:32" json:"nickname"`
	Level     int                              `gorm:"default:1" json:"level"`
	Exp       int64                            `gorm:"default:0" json:"exp"`
	HP        int                              `gorm:"not null" json:"hp"`
	Status    string                           `gorm:"size:16" json:"status"`
	Nature    string                           `gorm:"size:16" json:"nature"`
	Ability   string                           `gorm:"size:32" json:"ability"`
	Gender    string                           `gorm:"size:1" json:"gender"`
	IVs       datatypes.JSONType[StatBlock]    `json:"ivs"`
	EVs       datatypes.JSONType[StatBlock]    `json:"evs"`
	Moves     datatypes.JSONType[[]MoveRecord] `json:"moves"`
	Ball      string                           `gorm:"size:32" json:"ball"`
	CreatedAt time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
}
