package model

import "time"

// InventoryItem is one stack of an item in a player's bag. Currency is
// stored as an item too.
type InventoryItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID  int64     `gorm:"uniqueIndex:idx_player_item;not null" json:"player_id"`
	ItemID    string    `gorm:"uniqueIndex:idx_player_item;size:32;not null" json:"item_id"`
	Qty       int       `gorm:"default:0" json:"qty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
