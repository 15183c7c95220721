package model

import "time"

// PokedexEntry marks a species as caught by a player.
type PokedexEntry struct {
	PlayerID  int64     `gorm:"primaryKey" json:"player_id"`
	SpeciesID int       `gorm:"primaryKey" json:"species_id"`
	CaughtAt  time.Time `gorm:"autoCreateTime" json:"caught_at"`
}

func (PokedexEntry) TableName() string { return "pokedex_entries" }
