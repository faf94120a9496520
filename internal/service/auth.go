package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/storage"
)

type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"max=100"`
	Invite   string `json:"invite" validate:"max=64"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var errBadCredentials = fmt.Errorf("invalid email or password: %w", internal.ErrUnauthorized)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates an account. With an invite token the user joins that
// organization as a member, otherwise they administer a personal workspace.
func Signup(ctx context.Context, users AccountStore, req *SignupRequest) (*internal.User, error) {
	req.Email = normalizeEmail(req.Email)
	req.Invite = strings.TrimSpace(req.Invite)
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	var org *internal.Organization
	if req.Invite != "" {
		var err error
		if org, err = users.GetOrganizationByInvite(ctx, req.Invite); err != nil {
			if errors.Is(err, internal.ErrNotFound) {
				return nil, errInvalidInvite
			}
			return nil, err
		}
	}
	if _, err := users.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email %s is already registered: %w", req.Email, internal.ErrConflict)
	} else if !errors.Is(err, internal.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &internal.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         internal.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if org != nil {
		user.OrganizationID = org.ID
		user.WorkspaceID = org.OwnerID
		user.Role = internal.RoleMember
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login never reveals whether the email or the password was wrong.
func Login(ctx context.Context, users storage.UserRepository, req *LoginRequest) (*internal.User, error) {
	req.Email = normalizeEmail(req.Email)
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	user, err := users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, internal.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, errBadCredentials
	}
	return user, nil
}
