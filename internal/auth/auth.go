// Package auth owns account registration and JWT issuance. Accounts
// authenticate with API credentials and trade with short-lived tokens.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/exchange-api/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrInvalidName        = errors.New("name must be at least 3 characters")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Credentials represents the API authentication credentials
type Credentials struct {
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

// Service handles authentication and authorization operations
type Service struct {
	jwtSecret []byte
	db        *Database
}

// NewService creates a new authentication service with the given JWT secret
func NewService(gormDB *gorm.DB, jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		db:        NewDatabase(gormDB),
	}
}

// Register creates a USER account and returns its credentials. The secret is
// not retrievable afterwards.
func (s *Service) Register(name string) (*RegistrationResponse, error) {
	return s.register(name, RoleUser)
}

func (s *Service) register(name, role string) (*RegistrationResponse, error) {
	if len(name) < 3 {
		return nil, ErrInvalidName
	}

	account := &Account{
		AccountID: uuid.New().String(),
		Name:      name,
		Role:      role,
		APIKey:    "key-" + randomHex(16),
		APISecret: "secret-" + randomHex(16),
	}
	if err := s.db.CreateAccount(account); err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", account.AccountID).
		Str("role", account.Role).
		Msg("account registered")

	return &RegistrationResponse{
		AccountID: account.AccountID,
		Name:      account.Name,
		Role:      account.Role,
		APIKey:    account.APIKey,
		APISecret: account.APISecret,
	}, nil
}

// EnsureAdmin creates an ADMIN account on first boot and logs its
// credentials. Subsequent boots are a no-op.
func (s *Service) EnsureAdmin(name string) error {
	admins, err := s.db.CountAdmins()
	if err != nil {
		return err
	}
	if admins > 0 {
		return nil
	}

	admin, err := s.register(name, RoleAdmin)
	if err != nil {
		return err
	}

	log.Info().
		Str("api_key", admin.APIKey).
		Str("api_secret", admin.APISecret).
		Msg("bootstrap admin account created; store these credentials")
	return nil
}

// GenerateToken generates a JWT token for valid API credentials.
// The token carries the account id and role with 24-hour expiration.
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	account, err := s.db.GetAccountByAPIKey(creds.APIKey)
	if err != nil {
		return nil, err
	}
	if account == nil || account.APISecret != creds.APISecret {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(24 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		AccountID: account.AccountID,
		Role:      account.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type registerRequest struct {
	Name string `json:"name" binding:"required"`
}

// RegisterHandler handles public POST requests creating new accounts
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		account, err := h.service.Register(req.Name)
		if errors.Is(err, ErrInvalidName) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, account, err)
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
// Request body should contain API credentials
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
