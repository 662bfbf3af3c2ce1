package model

import "github.com/google/uuid"

// TokenClass selects the signing secret and lifetime of a token.
type TokenClass string

const (
	TokenAccess  TokenClass = "access"
	TokenRefresh TokenClass = "refresh"
	TokenReset   TokenClass = "reset"
	TokenVerify  TokenClass = "verify"
)

// Payload is the public user projection carried by every token.
// Issuer and TokenID are set for refresh and one-time tokens.
type Payload struct {
	UUID    uuid.UUID `json:"uuid"`
	Email   string    `json:"email"`
	Issuer  string    `json:"-"`
	TokenID string    `json:"-"`
}

// TokenPair is handed to the client after login or rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SID          uuid.UUID
}

// LoginResult is what the rotation engine returns on success.
type LoginResult struct {
	Tokens    TokenPair
	CSRFToken string
	User      User
}
