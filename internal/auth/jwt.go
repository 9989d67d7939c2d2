package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTAuthenticator struct {
	secret string
	aud    string
	iss    string
	ttl    time.Duration
}

func NewJWTAuthenticator(secret, aud, iss string, ttl time.Duration) *JWTAuthenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTAuthenticator{secret: secret, aud: aud, iss: iss, ttl: ttl}
}

func (a *JWTAuthenticator) GenerateToken(merchant, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  merchant,
		"role": role,
		"exp":  now.Add(a.ttl).Unix(),
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"iss":  a.iss,
		"aud":  a.aud,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(a.secret))
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func (a *JWTAuthenticator) ValidateToken(token string) (*jwt.Token, error) {
	return jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.secret), nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(a.aud),
		jwt.WithIssuer(a.iss),
	)
}

// Subject returns the merchant and role carried by a validated token.
func Subject(token *jwt.Token) (merchant, role string, err error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("unexpected claims type")
	}
	merchant, err = claims.GetSubject()
	if err != nil {
		return "", "", err
	}
	role, _ = claims["role"].(string)
	return merchant, role, nil
}
