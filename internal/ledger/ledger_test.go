package ledger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
	require.NoError(t, db.AutoMigrate(&Balance{}))
	return db
}

func TestAdjustAccumulatesSignedAmounts(t *testing.T) {
	svc := NewService(setupTestDB(t))

	deltas := []int64{100, -30, 50, -20}
	var sum int64
	for _, d := range deltas {
		amount, err := svc.Adjust("acc1", "USD", decimal.NewFromInt(d))
		require.NoError(t, err)
		sum += d
		assert.True(t, amount.Equal(decimal.NewFromInt(sum)), "after delta %d", d)
	}

	balance, err := svc.BalanceOf("acc1", "USD")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))
}

func TestAdjustRejectsOverdraw(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Adjust("acc1", "USD", decimal.NewFromInt(40))
	require.NoError(t, err)

	_, err = svc.Adjust("acc1", "USD", decimal.NewFromInt(-50))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// The failed withdrawal must not have touched the balance
	balance, err := svc.BalanceOf("acc1", "USD")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(40)))
}

func TestAdjustRejectsWithdrawalFromEmptyAccount(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Adjust("ghost", "USD", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestBalanceOfDefaultsToZero(t *testing.T) {
	svc := NewService(setupTestDB(t))

	balance, err := svc.BalanceOf("nobody", "ABC")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestSnapshot(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Adjust("acc1", "USD", decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = svc.Adjust("acc1", "ABC", decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = svc.Adjust("acc2", "USD", decimal.NewFromInt(5))
	require.NoError(t, err)

	snapshot, err := svc.Snapshot("acc1")
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	assert.True(t, snapshot["USD"].Equal(decimal.NewFromInt(1000)))
	assert.True(t, snapshot["ABC"].Equal(decimal.NewFromInt(10)))
}

func TestSettleMovesBothLegs(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Adjust("buyer", types.QuoteAsset, decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = svc.Adjust("seller", "ABC", decimal.NewFromInt(10))
	require.NoError(t, err)

	require.NoError(t, svc.Settle("buyer", "seller", "ABC", 10, 50))

	checks := []struct {
		account string
		asset   string
		want    int64
	}{
		{"buyer", "ABC", 10},
		{"buyer", types.QuoteAsset, 500},
		{"seller", "ABC", 0},
		{"seller", types.QuoteAsset, 500},
	}
	for _, c := range checks {
		balance, err := svc.BalanceOf(c.account, c.asset)
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(c.want)),
			"%s %s: want %d, got %s", c.account, c.asset, c.want, balance)
	}
}

func TestSettleConservesValue(t *testing.T) {
	svc := NewService(setupTestDB(t))

	_, err := svc.Adjust("buyer", types.QuoteAsset, decimal.NewFromInt(10_000))
	require.NoError(t, err)
	_, err = svc.Adjust("seller", "ABC", decimal.NewFromInt(100))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Settle("buyer", "seller", "ABC", 7, 13))
	}

	total := func(asset string) decimal.Decimal {
		sum := decimal.Zero
		for _, account := range []string{"buyer", "seller"} {
			balance, err := svc.BalanceOf(account, asset)
			require.NoError(t, err)
			sum = sum.Add(balance)
		}
		return sum
	}

	assert.True(t, total(types.QuoteAsset).Equal(decimal.NewFromInt(10_000)))
	assert.True(t, total("ABC").Equal(decimal.NewFromInt(100)))
}

func TestSettleRollsBackOnInsufficientFunds(t *testing.T) {
	svc := NewService(setupTestDB(t))

	// Buyer can only cover part of the notional
	_, err := svc.Adjust("buyer", types.QuoteAsset, decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = svc.Adjust("seller", "ABC", decimal.NewFromInt(10))
	require.NoError(t, err)

	err = svc.Settle("buyer", "seller", "ABC", 10, 50)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// No leg may have been applied
	checks := map[string]map[string]int64{
		"buyer":  {types.QuoteAsset: 100, "ABC": 0},
		"seller": {types.QuoteAsset: 0, "ABC": 10},
	}
	for account, assets := range checks {
		for asset, want := range assets {
			balance, err := svc.BalanceOf(account, asset)
			require.NoError(t, err)
			assert.True(t, balance.Equal(decimal.NewFromInt(want)),
				"%s %s: want %d, got %s", account, asset, want, balance)
		}
	}
}

func TestConcurrentAdjustsSameAccount(t *testing.T) {
	svc := NewService(setupTestDB(t))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust("acc1", "USD", decimal.NewFromInt(5))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := svc.BalanceOf("acc1", "USD")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(workers*5)))
}
