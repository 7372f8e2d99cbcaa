package instruments

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/exchange-api/internal/ledger"
	"github.com/ksred/exchange-api/internal/types"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Instrument{}, &types.Order{}, &ledger.Balance{}))
	return db
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(setupTestDB(t))

	tests := []struct {
		name   string
		ticker string
	}{
		{"lowercase", "abc"},
		{"too short", "A"},
		{"too long", "ABCDEFGHIJK"},
		{"digits", "AB1"},
		{"empty", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(tc.ticker, "Some Instrument", 1)
			assert.ErrorIs(t, err, ErrInvalidInstrument)
		})
	}

	_, err := svc.Create("ABC", "", 1)
	assert.ErrorIs(t, err, ErrInvalidInstrument)

	_, err = svc.Create("ABC", "Negative Tick", -1)
	assert.ErrorIs(t, err, ErrInvalidInstrument)
}

func TestCreateRejectsQuoteAsset(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Create(types.QuoteAsset, "Quote Currency", 1)
	assert.ErrorIs(t, err, ErrInvalidInstrument)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Create("ABC", "Test Instrument", 1)
	require.NoError(t, err)

	_, err = svc.Create("ABC", "Another Name", 5)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateDefaultsTickSize(t *testing.T) {
	svc := NewService(setupTestDB(t))

	instrument, err := svc.Create("ABC", "Test Instrument", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), instrument.TickSize)
}

func TestGetAndList(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Create("XYZ", "Second", 1)
	require.NoError(t, err)
	_, err = svc.Create("ABC", "First", 5)
	require.NoError(t, err)

	instrument, err := svc.Get("ABC")
	require.NoError(t, err)
	assert.Equal(t, int64(5), instrument.TickSize)

	_, err = svc.Get("NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ABC", list[0].Ticker)
	assert.Equal(t, "XYZ", list[1].Ticker)
}

func TestDeleteUnreferencedInstrument(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Create("ABC", "Test Instrument", 1)
	require.NoError(t, err)

	require.NoError(t, svc.Delete("ABC"))
	_, err = svc.Get("ABC")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUnknownInstrument(t *testing.T) {
	svc := NewService(setupTestDB(t))

	assert.ErrorIs(t, svc.Delete("NOPE"), ErrNotFound)
}

func TestDeleteRefusedWithOpenOrder(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	_, err := svc.Create("ABC", "Test Instrument", 1)
	require.NoError(t, err)

	order := types.Order{
		OrderID:   uuid.New().String(),
		AccountID: "acc1",
		Ticker:    "ABC",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeLimit,
		Price:     50,
		Quantity:  10,
		Status:    types.StatusNew,
	}
	require.NoError(t, db.Create(&order).Error)

	assert.ErrorIs(t, svc.Delete("ABC"), ErrInUse)

	// Once the order reaches a terminal state the instrument can go
	require.NoError(t, db.Model(&types.Order{}).
		Where("order_id = ?", order.OrderID).
		Update("status", types.StatusCancelled).Error)
	assert.NoError(t, svc.Delete("ABC"))
}

func TestDeleteRefusedWithHeldBalance(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)

	_, err := svc.Create("ABC", "Test Instrument", 1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(db)
	_, err = ledgerSvc.Adjust("acc1", "ABC", decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete("ABC"), ErrInUse)

	// Draining the balance back to zero releases the instrument
	_, err = ledgerSvc.Adjust("acc1", "ABC", decimal.NewFromInt(-10))
	require.NoError(t, err)
	assert.NoError(t, svc.Delete("ABC"))
}
