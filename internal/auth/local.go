package auth

import (
	"context"
	"fmt"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/storage"
)

// LocalAuthProvider accepts session tokens signed by this server.
type LocalAuthProvider struct {
	tokens *TokenIssuer
	users  storage.UserRepository
	logger internal.Logger
}

func (a *LocalAuthProvider) ValidateTokenLocal(ctx context.Context, token string) (*internal.User, error) {
	claims, err := a.tokens.Parse(token)
	if err != nil {
		a.logger.Warnf("invalid session token: %v", err)
		return nil, err
	}
	user, err := a.users.GetUser(ctx, claims.UserID)
	if err != nil {
		a.logger.Warnf("session token for unknown user %s: %v", claims.UserID, err)
		return nil, fmt.Errorf("auth: %v: %w", err, internal.ErrUnauthorized)
	}
	return user, nil
}

func (a *LocalAuthProvider) ValidateTokenRemote(ctx context.Context, token string) (*internal.User, error) {
	a.logger.Warnf("ValidateTokenRemote not implemented in LocalAuthProvider")
	return nil, fmt.Errorf("auth: remote validation %w", errNotSupported)
}

func NewLocalAuthProvider(tokens *TokenIssuer, users storage.UserRepository, logger internal.Logger) *LocalAuthProvider {
	return &LocalAuthProvider{tokens: tokens, users: users, logger: logger}
}
