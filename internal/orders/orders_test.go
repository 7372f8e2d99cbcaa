package orders

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/exchange-api/internal/types"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Order{}, &IdempotencyRecord{}))
	return db
}

func limitSpec(account string, side string, price, qty int64) Spec {
	return Spec{
		AccountID: account,
		Ticker:    "ABC",
		Side:      side,
		OrderType: types.OrderTypeLimit,
		Price:     price,
		Quantity:  qty,
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(setupTestDB(t))

	tests := []struct {
		name     string
		spec     Spec
		tickSize int64
	}{
		{
			name:     "zero quantity",
			spec:     limitSpec("acc1", types.SideBuy, 50, 0),
			tickSize: 1,
		},
		{
			name:     "negative quantity",
			spec:     limitSpec("acc1", types.SideBuy, 50, -5),
			tickSize: 1,
		},
		{
			name:     "limit without price",
			spec:     limitSpec("acc1", types.SideBuy, 0, 10),
			tickSize: 1,
		},
		{
			name:     "negative price",
			spec:     limitSpec("acc1", types.SideSell, -50, 10),
			tickSize: 1,
		},
		{
			name:     "price off tick",
			spec:     limitSpec("acc1", types.SideBuy, 52, 10),
			tickSize: 5,
		},
		{
			name: "market with price",
			spec: Spec{
				AccountID: "acc1",
				Ticker:    "ABC",
				Side:      types.SideBuy,
				OrderType: types.OrderTypeMarket,
				Price:     50,
				Quantity:  10,
			},
			tickSize: 1,
		},
		{
			name: "unknown order type",
			spec: Spec{
				AccountID: "acc1",
				Ticker:    "ABC",
				Side:      types.SideBuy,
				OrderType: "STOP",
				Quantity:  10,
			},
			tickSize: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(tc.spec, tc.tickSize, "")
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
}

func TestCreateLimitOrder(t *testing.T) {
	svc := NewService(setupTestDB(t))

	order, err := svc.Create(limitSpec("acc1", types.SideBuy, 50, 10), 1, "")
	require.NoError(t, err)

	assert.NotEmpty(t, order.OrderID)
	assert.Equal(t, types.StatusNew, order.Status)
	assert.Equal(t, int64(0), order.Filled)
	assert.Equal(t, int64(10), order.Remaining())
}

func TestCreateAcceptsTickMultiple(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Create(limitSpec("acc1", types.SideBuy, 55, 10), 5, "")
	assert.NoError(t, err)
}

func TestRecordFillTransitions(t *testing.T) {
	svc := NewService(setupTestDB(t))

	order, err := svc.Create(limitSpec("acc1", types.SideSell, 50, 10), 1, "")
	require.NoError(t, err)

	order, err = svc.RecordFill(order.OrderID, 4)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartiallyExecuted, order.Status)
	assert.Equal(t, int64(6), order.Remaining())

	order, err = svc.RecordFill(order.OrderID, 6)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, order.Status)
	assert.Equal(t, int64(0), order.Remaining())
}

func TestRecordFillOverFill(t *testing.T) {
	svc := NewService(setupTestDB(t))

	order, err := svc.Create(limitSpec("acc1", types.SideSell, 50, 10), 1, "")
	require.NoError(t, err)

	_, err = svc.RecordFill(order.OrderID, 11)
	assert.ErrorIs(t, err, ErrOverFill)

	_, err = svc.RecordFill(order.OrderID, 0)
	assert.ErrorIs(t, err, ErrOverFill)

	// State is unchanged after the rejected fills
	order, err = svc.Get(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), order.Filled)
	assert.Equal(t, types.StatusNew, order.Status)
}

func TestRecordFillUnknownOrder(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.RecordFill("missing", 1)
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestCancel(t *testing.T) {
	svc := NewService(setupTestDB(t))

	order, err := svc.Create(limitSpec("acc1", types.SideBuy, 50, 10), 1, "")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(order.OrderID, "acc1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)
}

func TestCancelNotOwner(t *testing.T) {
	svc := NewService(setupTestDB(t))

	order, err := svc.Create(limitSpec("acc1", types.SideBuy, 50, 10), 1, "")
	require.NoError(t, err)

	_, err = svc.Cancel(order.OrderID, "acc2")
	assert.ErrorIs(t, err, ErrNotOwner)

	// Still cancellable by the owner
	_, err = svc.Cancel(order.OrderID, "acc1")
	assert.NoError(t, err)
}

func TestCancelTerminalState(t *testing.T) {
	svc := NewService(setupTestDB(t))

	// Cancelling twice fails the second time
	order, err := svc.Create(limitSpec("acc1", types.SideBuy, 50, 10), 1, "")
	require.NoError(t, err)
	_, err = svc.Cancel(order.OrderID, "acc1")
	require.NoError(t, err)
	_, err = svc.Cancel(order.OrderID, "acc1")
	assert.ErrorIs(t, err, ErrTerminalState)

	// Executed orders cannot be cancelled
	order, err = svc.Create(limitSpec("acc1", types.SideSell, 50, 5), 1, "")
	require.NoError(t, err)
	_, err = svc.RecordFill(order.OrderID, 5)
	require.NoError(t, err)
	_, err = svc.Cancel(order.OrderID, "acc1")
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestCancelUnknownOrder(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Cancel("missing", "acc1")
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestIdempotencyLookup(t *testing.T) {
	svc := NewService(setupTestDB(t))

	order, err := svc.Create(limitSpec("acc1", types.SideBuy, 50, 10), 1, "key-123")
	require.NoError(t, err)

	replay, err := svc.Lookup("key-123")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, order.OrderID, replay.OrderID)

	missing, err := svc.Lookup("other-key")
	require.NoError(t, err)
	assert.Nil(t, missing)

	none, err := svc.Lookup("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestListByAccount(t *testing.T) {
	svc := NewService(setupTestDB(t))

	for i := 0; i < 3; i++ {
		_, err := svc.Create(limitSpec("acc1", types.SideBuy, 50, 10), 1, "")
		require.NoError(t, err)
	}
	_, err := svc.Create(limitSpec("acc2", types.SideSell, 50, 10), 1, "")
	require.NoError(t, err)

	list, err := svc.ListByAccount("acc1")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestOpenOrdersExcludesTerminalAndMarket(t *testing.T) {
	svc := NewService(setupTestDB(t))

	resting, err := svc.Create(limitSpec("acc1", types.SideBuy, 50, 10), 1, "")
	require.NoError(t, err)

	partial, err := svc.Create(limitSpec("acc1", types.SideSell, 55, 10), 1, "")
	require.NoError(t, err)
	_, err = svc.RecordFill(partial.OrderID, 3)
	require.NoError(t, err)

	executed, err := svc.Create(limitSpec("acc2", types.SideSell, 60, 5), 1, "")
	require.NoError(t, err)
	_, err = svc.RecordFill(executed.OrderID, 5)
	require.NoError(t, err)

	cancelled, err := svc.Create(limitSpec("acc2", types.SideBuy, 45, 5), 1, "")
	require.NoError(t, err)
	_, err = svc.Cancel(cancelled.OrderID, "acc2")
	require.NoError(t, err)

	open, err := svc.OpenOrders("ABC")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, resting.OrderID, open[0].OrderID)
	assert.Equal(t, partial.OrderID, open[1].OrderID)
}
