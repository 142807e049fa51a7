package credentials

import "time"

// ProviderPassword is the Identity.Provider value for password sign-ins.
const ProviderPassword = "password"

type Credential struct {
	ID           string
	UserID       string
	PasswordHash string
	HashVersion  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
