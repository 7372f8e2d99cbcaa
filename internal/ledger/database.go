package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// getBalance loads the (account, asset) row inside tx, returning a zero-value
// row if none exists yet. Rows are created lazily on first write.
func (d *Database) getBalance(tx *gorm.DB, accountID, asset string) (*Balance, error) {
	var balance Balance
	err := tx.Where("account_id = ? AND asset = ?", accountID, asset).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Balance{AccountID: accountID, Asset: asset, Amount: decimal.Zero}, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (d *Database) saveBalance(tx *gorm.DB, balance *Balance) error {
	return tx.Save(balance).Error
}

// applyDelta adjusts one (account, asset) row inside tx, refusing any change
// that would take the amount negative.
func (d *Database) applyDelta(tx *gorm.DB, accountID, asset string, delta decimal.Decimal) (decimal.Decimal, error) {
	balance, err := d.getBalance(tx, accountID, asset)
	if err != nil {
		return decimal.Zero, err
	}

	next := balance.Amount.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientFunds
	}

	balance.Amount = next
	if err := d.saveBalance(tx, balance); err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

func (d *Database) GetBalance(accountID, asset string) (decimal.Decimal, error) {
	balance, err := d.getBalance(d.db, accountID, asset)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Amount, nil
}

func (d *Database) GetBalances(accountID string) ([]Balance, error) {
	var balances []Balance
	if err := d.db.Where("account_id = ?", accountID).Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}
