package auth

import "github.com/golang-jwt/jwt/v5"

// Authenticator issues and checks the bearer tokens merchants use for the
// admin endpoints.
type Authenticator interface {
	GenerateToken(merchant, role string) (string, error)
	ValidateToken(token string) (*jwt.Token, error)
}

const RoleMerchant = "merchant"
