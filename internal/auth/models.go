package auth

import "gorm.io/gorm"

// Account roles.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account is an API identity. The secret is only ever returned once, in the
// registration response.
type Account struct {
	gorm.Model `json:"-"`
	AccountID  string `gorm:"uniqueIndex" json:"account_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	APIKey     string `gorm:"uniqueIndex" json:"api_key"`
	APISecret  string `json:"-"`
}

// RegistrationResponse carries the one-time credential disclosure.
type RegistrationResponse struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}
