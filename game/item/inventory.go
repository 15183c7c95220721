package item

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/monsterbattle/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxStack caps a single item stack. Currency ignores the cap.
const MaxStack = 999

var (
	ErrInsufficient = errors.New("item: not enough items")
	ErrStackFull    = errors.New("item: stack full")
	ErrBadQuantity  = errors.New("item: quantity must be positive")
)

// Ledger is the gorm-backed item store used by battles for balls, medicine,
// drops and currency.
type Ledger struct {
	db         *gorm.DB
	currencyID string
	logger     *zap.Logger
}

// NewLedger creates a Ledger. currencyID names the item that holds money and
// is exempt from MaxStack.
func NewLedger(db *gorm.DB, currencyID string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, currencyID: currencyID, logger: logger}
}

// GetItemCount returns how many of itemID the player holds (0 if none).
func (l *Ledger) GetItemCount(ctx context.Context, playerID int64, itemID string) (int, error) {
	var inv model.InventoryItem
	err := l.db.WithContext(ctx).Where("player_id = ? AND item_id = ?", playerID, itemID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return inv.Qty, nil
}

// ConsumeItem removes qty of itemID. The stack row is deleted at zero.
func (l *Ledger) ConsumeItem(ctx context.Context, playerID int64, itemID string, qty int) error {
	if qty <= 0 {
		return ErrBadQuantity
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv model.InventoryItem
		err := tx.Where("player_id = ? AND item_id = ?", playerID, itemID).First(&inv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s: %w", itemID, ErrInsufficient)
		}
		if err != nil {
			return err
		}
		if inv.Qty < qty {
			return fmt.Errorf("%s: have %d need %d: %w", itemID, inv.Qty, qty, ErrInsufficient)
		}
		if inv.Qty == qty {
			return tx.Delete(&inv).Error
		}
		return tx.Model(&inv).Update("qty", inv.Qty-qty).Error
	})
}

// AddItem adds qty of itemID, creating the stack if needed.
func (l *Ledger) AddItem(ctx context.Context, playerID int64, itemID string, qty int) error {
	if qty <= 0 {
		return ErrBadQuantity
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv model.InventoryItem
		err := tx.Where("player_id = ? AND item_id = ?", playerID, itemID).First(&inv).Error
		if err == nil {
			newQty := inv.Qty + qty
			if itemID != l.currencyID && newQty > MaxStack {
				return fmt.Errorf("%s: %w", itemID, ErrStackFull)
			}
			return tx.Model(&inv).Update("qty", newQty).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if itemID != l.currencyID && qty > MaxStack {
			return fmt.Errorf("%s: %w", itemID, ErrStackFull)
		}
		return tx.Create(&model.InventoryItem{PlayerID: playerID, ItemID: itemID, Qty: qty}).Error
	})
}

// List returns all stacks held by the player.
func (l *Ledger) List(ctx context.Context, playerID int64) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	err := l.db.WithContext(ctx).Where("player_id = ?", playerID).Order("item_id").Find(&items).Error
	return items, err
}
