package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const maxTokenAttempts = 100

// TokenSource produces candidate payment tokens.
type TokenSource func() string

func newUUIDToken() string {
	return uuid.NewString()
}

// assignToken gives p a token no other stored payment uses.
func (s *Service) assignToken(ctx context.Context, p *Payment) error {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token := s.tokens()
		exists, err := s.store.TokenExists(ctx, token)
		if err != nil {
			return fmt.Errorf("check token: %w", err)
		}
		if !exists {
			p.Token = token
			return nil
		}
	}
	return ErrTokenSpaceExhausted
}
