package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/monsterbattle/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBoxFull  = errors.New("roster: box full")
	ErrNotOwner = errors.New("roster: entry belongs to another player")
)

// Store persists roster entries, the overflow box and the pokedex.
type Store struct {
	db          *gorm.DB
	boxCapacity int
	logger      *zap.Logger
}

// NewStore creates a roster Store. boxCapacity <= 0 means unlimited.
func NewStore(db *gorm.DB, boxCapacity int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, boxCapacity: boxCapacity, logger: logger}
}

// GetRoster returns the player's active party ordered by slot.
func (s *Store) GetRoster(ctx context.Context, playerID int64) ([]model.Pokemon, error) {
	var party []model.Pokemon
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND location = ?", playerID, model.LocationParty).
		Order("slot").Find(&party).Error
	return party, err
}

// GetBox returns the player's boxed Pokemon ordered by slot.
func (s *Store) GetBox(ctx context.Context, playerID int64) ([]model.Pokemon, error) {
	var box []model.Pokemon
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND location = ?", playerID, model.LocationBox).
		Order("slot").Find(&box).Error
	return box, err
}

// SaveRosterEntry writes back a battle-modified entry. The entry must
// already exist and keep its owner.
func (s *Store) SaveRosterEntry(ctx context.Context, entry *model.Pokemon) error {
	if entry.ID == 0 {
		return fmt.Errorf("roster: save entry without id")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur model.Pokemon
		if err := tx.Select("id", "owner_id").First(&cur, entry.ID).Error; err != nil {
			return err
		}
		if cur.OwnerID != entry.OwnerID {
			return ErrNotOwner
		}
		return tx.Save(entry).Error
	})
}

// PersistCapturedEntity stores a newly caught Pokemon in the first free party
// slot, or in the box when the party is full, and records the species in the
// owner's pokedex. It returns the new entry id.
func (s *Store) PersistCapturedEntity(ctx context.Context, entity *model.Pokemon) (int64, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var partyCount int64
		if err := tx.Model(&model.Pokemon{}).
			Where("owner_id = ? AND location = ?", entity.OwnerID, model.LocationParty).
			Count(&partyCount).Error; err != nil {
			return err
		}
		if partyCount < model.PartySize {
			entity.Location = model.LocationParty
			entity.Slot = int(partyCount)
		} else {
			var boxCount int64
			if err := tx.Model(&model.Pokemon{}).
				Where("owner_id = ? AND location = ?", entity.OwnerID, model.LocationBox).
				Count(&boxCount).Error; err != nil {
				return err
			}
			if s.boxCapacity > 0 && boxCount >= int64(s.boxCapacity) {
				return ErrBoxFull
			}
			entity.Location = model.LocationBox
			entity.Slot = int(boxCount)
		}
		if err := tx.Create(entity).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.PokedexEntry{PlayerID: entity.OwnerID, SpeciesID: entity.SpeciesID}).Error
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("captured pokemon stored",
		zap.Int64("owner_id", entity.OwnerID),
		zap.Int64("entry_id", entity.ID),
		zap.String("location", entity.Location),
		zap.Int("species_id", entity.SpeciesID))
	return entity.ID, nil
}

// CaughtSpeciesCount returns the number of distinct species the player has
// caught.
func (s *Store) CaughtSpeciesCount(ctx context.Context, playerID int64) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.PokedexEntry{}).
		Where("player_id = ?", playerID).Count(&n).Error
	return int(n), err
}
