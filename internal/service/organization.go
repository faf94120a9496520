package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/storage"
)

// AccountStore holds users and the organizations they belong to.
type AccountStore interface {
	storage.UserRepository
	storage.OrganizationRepository
}

type OrganizationRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// OrganizationView is an organization with its members. The invite token is
// only shown to admins.
type OrganizationView struct {
	internal.Organization
	Members []internal.User `json:"members"`
}

// InviteInfo is what an invite link reveals before signing up.
type InviteInfo struct {
	OrganizationName string `json:"organization_name"`
}

var errInvalidInvite = internal.NewAppError(http.StatusBadRequest, "invalid organization invite")

func requireAdmin(user *internal.User, action string) error {
	if !user.IsAdmin() {
		return fmt.Errorf("only admins may %s: %w", action, internal.ErrForbidden)
	}
	return nil
}

func newInviteToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateOrganization turns the user's personal workspace into an
// organization they administer. People, logs and settings stay where they are.
func CreateOrganization(ctx context.Context, store AccountStore, user *internal.User, req *OrganizationRequest) (*OrganizationView, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if user.OrganizationID != "" || user.Workspace() != user.ID {
		return nil, fmt.Errorf("user already belongs to an organization: %w", internal.ErrConflict)
	}
	org := &internal.Organization{
		ID:          uuid.NewString(),
		Name:        req.Name,
		OwnerID:     user.ID,
		InviteToken: newInviteToken(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	user.OrganizationID = org.ID
	user.Role = internal.RoleAdmin
	return GetOrganization(ctx, store, user)
}

func GetOrganization(ctx context.Context, store AccountStore, user *internal.User) (*OrganizationView, error) {
	if user.OrganizationID == "" {
		return nil, fmt.Errorf("user has no organization: %w", internal.ErrNotFound)
	}
	org, err := store.GetOrganization(ctx, user.OrganizationID)
	if err != nil {
		return nil, err
	}
	members, err := store.ListMembers(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		org.InviteToken = ""
	}
	return &OrganizationView{Organization: *org, Members: members}, nil
}

// RotateInvite replaces the invite token, invalidating links shared before.
func RotateInvite(ctx context.Context, store AccountStore, user *internal.User) (*OrganizationView, error) {
	if err := requireAdmin(user, "rotate invites"); err != nil {
		return nil, err
	}
	if user.OrganizationID == "" {
		return nil, fmt.Errorf("user has no organization: %w", internal.ErrNotFound)
	}
	org, err := store.GetOrganization(ctx, user.OrganizationID)
	if err != nil {
		return nil, err
	}
	org.InviteToken = newInviteToken()
	if err := store.UpdateOrganization(ctx, org); err != nil {
		return nil, err
	}
	return GetOrganization(ctx, store, user)
}

// RemoveMember detaches a member, who goes back to an empty personal
// workspace. The owner cannot be removed.
func RemoveMember(ctx context.Context, store AccountStore, user *internal.User, memberID string) error {
	if err := requireAdmin(user, "remove members"); err != nil {
		return err
	}
	member, err := store.GetUser(ctx, memberID)
	if err != nil {
		return err
	}
	if user.OrganizationID == "" || member.OrganizationID != user.OrganizationID {
		return fmt.Errorf("member %s: %w", memberID, internal.ErrNotFound)
	}
	if member.Role == internal.RoleAdmin {
		return internal.NewAppError(http.StatusBadRequest, "the organization owner cannot be removed")
	}
	member.OrganizationID = ""
	member.WorkspaceID = ""
	member.Role = internal.RoleAdmin
	return store.UpdateUser(ctx, member)
}

func LookupInvite(ctx context.Context, orgs storage.OrganizationRepository, token string) (*InviteInfo, error) {
	org, err := orgs.GetOrganizationByInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	return &InviteInfo{OrganizationName: org.Name}, nil
}
