package auth

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Account{}))
	return NewService(db, "test-secret")
}

func TestRegister(t *testing.T) {
	svc := setupTestService(t)

	account, err := svc.Register("alice")
	require.NoError(t, err)

	assert.NotEmpty(t, account.AccountID)
	assert.Equal(t, RoleUser, account.Role)
	assert.Contains(t, account.APIKey, "key-")
	assert.Contains(t, account.APISecret, "secret-")
}

func TestRegisterRejectsShortName(t *testing.T) {
	svc := setupTestService(t)

	_, err := svc.Register("ab")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestRegisterIssuesDistinctCredentials(t *testing.T) {
	svc := setupTestService(t)

	first, err := svc.Register("alice")
	require.NoError(t, err)
	second, err := svc.Register("alice")
	require.NoError(t, err)

	assert.NotEqual(t, first.AccountID, second.AccountID)
	assert.NotEqual(t, first.APIKey, second.APIKey)
}

func TestGenerateTokenRoundTrip(t *testing.T) {
	svc := setupTestService(t)

	account, err := svc.Register("alice")
	require.NoError(t, err)

	token, err := svc.GenerateToken(Credentials{
		APIKey:    account.APIKey,
		APISecret: account.APISecret,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, account.AccountID, claims.AccountID)
	assert.Equal(t, RoleUser, claims.Role)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc := setupTestService(t)

	account, err := svc.Register("alice")
	require.NoError(t, err)

	_, err = svc.GenerateToken(Credentials{APIKey: account.APIKey, APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GenerateToken(Credentials{APIKey: "unknown", APISecret: account.APISecret})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	svc := setupTestService(t)

	account, err := svc.Register("alice")
	require.NoError(t, err)
	token, err := svc.GenerateToken(Credentials{
		APIKey:    account.APIKey,
		APISecret: account.APISecret,
	})
	require.NoError(t, err)

	other := setupTestService(t)
	other.jwtSecret = []byte("another-secret")
	_, err = other.ValidateToken(token.Token)
	assert.Error(t, err)
}

func TestEnsureAdminIdempotent(t *testing.T) {
	svc := setupTestService(t)

	require.NoError(t, svc.EnsureAdmin("exchange-admin"))
	require.NoError(t, svc.EnsureAdmin("exchange-admin"))

	admins, err := svc.db.CountAdmins()
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)
}
