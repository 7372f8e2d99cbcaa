package ledger

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Balance is one (account, asset) row. Amounts are exact decimals; the
// uniqueness of the pair is enforced by the composite index.
type Balance struct {
	gorm.Model `json:"-"`
	AccountID  string          `gorm:"uniqueIndex:idx_balance_account_asset" json:"account_id"`
	Asset      string          `gorm:"uniqueIndex:idx_balance_account_asset" json:"asset"`
	Amount     decimal.Decimal `gorm:"type:decimal(32,16)" json:"amount"`
}
