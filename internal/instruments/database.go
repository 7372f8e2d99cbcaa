package instruments

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ksred/exchange-api/internal/ledger"
	"github.com/ksred/exchange-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateInstrument(instrument *types.Instrument) error {
	return d.db.Create(instrument).Error
}

func (d *Database) GetInstrument(ticker string) (*types.Instrument, error) {
	var instrument types.Instrument
	if err := d.db.Where("ticker = ?", ticker).First(&instrument).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &instrument, nil
}

func (d *Database) ListInstruments() ([]types.Instrument, error) {
	var instruments []types.Instrument
	if err := d.db.Order("ticker ASC").Find(&instruments).Error; err != nil {
		return nil, err
	}
	return instruments, nil
}

func (d *Database) DeleteInstrument(ticker string) error {
	return d.db.Where("ticker = ?", ticker).Delete(&types.Instrument{}).Error
}

// countReferences reports open orders plus nonzero balances touching the
// ticker. Instruments with either may not be deleted.
func (d *Database) countReferences(ticker string) (int64, error) {
	var openOrders int64
	err := d.db.Model(&types.Order{}).
		Where("ticker = ? AND status IN ?", ticker,
			[]string{types.StatusNew, types.StatusPartiallyExecuted}).
		Count(&openOrders).Error
	if err != nil {
		return 0, err
	}

	var heldBalances int64
	err = d.db.Model(&ledger.Balance{}).
		Where("asset = ? AND amount <> '0'", ticker).
		Count(&heldBalances).Error
	if err != nil {
		return 0, err
	}

	return openOrders + heldBalances, nil
}
