package model_test

import (
	"testing"

	"github.com/kasuganosora/monsterbattle/model"
	"github.com/kasuganosora/monsterbattle/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	mon := &model.Pokemon{
		OwnerID: 1, Location: model.LocationParty, SpeciesID: 25, Level: 12, HP: 30,
		IVs:   datatypes.NewJSONType(model.StatBlock{HP: 31, Atk: 20}),
		Moves: datatypes.NewJSONType([]model.MoveRecord{{MoveID: 1, PP: 35, MaxPP: 35}}),
	}
	require.NoError(t, db.Create(mon).Error)
	assert.Greater(t, mon.ID, int64(0))

	var found model.Pokemon
	require.NoError(t, db.First(&found, mon.ID).Error)
	assert.Equal(t, 25, found.SpeciesID)
	assert.Equal(t, 31, found.IVs.Data().HP)
	require.Len(t, found.Moves.Data(), 1)
	assert.Equal(t, 35, found.Moves.Data()[0].PP)

	require.NoError(t, db.Create(&model.InventoryItem{PlayerID: 1, ItemID: "poke_ball", Qty: 5}).Error)
	dup := db.Create(&model.InventoryItem{PlayerID: 1, ItemID: "poke_ball", Qty: 1}).Error
	assert.Error(t, dup, "one stack per player and item")

	require.NoError(t, db.Create(&model.PokedexEntry{PlayerID: 1, SpeciesID: 25}).Error)
	var caught int64
	require.NoError(t, db.Model(&model.PokedexEntry{}).Where("player_id = ?", 1).Count(&caught).Error)
	assert.Equal(t, int64(1), caught)

	row := &model.BattleJournal{SessionID: "s-1", Seq: 1, BattleType: "WILD", ToPhase: "INTRO", Trigger: "start"}
	require.NoError(t, db.Create(row).Error)
	var rows []model.BattleJournal
	require.NoError(t, db.Where("session_id = ?", "s-1").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "INTRO", rows[0].ToPhase)
	assert.False(t, rows[0].CreatedAt.IsZero())
}
