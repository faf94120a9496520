package auth

import (
	"context"
	"errors"

	"github.com/Cuffsss/studio/internal"
)

var errNotSupported = errors.New("not supported by this provider")

type Provider interface {
	ValidateTokenLocal(ctx context.Context, token string) (*internal.User, error)
	ValidateTokenRemote(ctx context.Context, token string) (*internal.User, error)
}
