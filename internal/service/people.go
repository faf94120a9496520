package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/scheduler"
	"github.com/Cuffsss/studio/internal/storage"
)

type PersonRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Age   *int   `json:"age" validate:"omitempty,gte=0,lte=150"`
	Notes string `json:"notes" validate:"max=1000"`
}

type NotificationToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (r *PersonRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Notes = strings.TrimSpace(r.Notes)
}

func CreatePerson(ctx context.Context, people storage.PersonRepository, user *internal.User, req *PersonRequest) (*internal.Person, error) {
	req.normalize()
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	person := &internal.Person{
		ID:                   uuid.NewString(),
		OwnerID:              user.Workspace(),
		Name:                 req.Name,
		Age:                  req.Age,
		Notes:                req.Notes,
		NotificationsEnabled: true,
		CreatedAt:            time.Now().UTC(),
	}
	if err := people.SavePerson(ctx, person); err != nil {
		return nil, err
	}
	return person, nil
}

func UpdatePerson(ctx context.Context, people storage.PersonRepository, user *internal.User, id string, req *PersonRequest) (*internal.Person, error) {
	req.normalize()
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	person, err := people.GetPerson(ctx, user.Workspace(), id)
	if err != nil {
		return nil, err
	}
	person.Name = req.Name
	person.Age = req.Age
	person.Notes = req.Notes
	if err := people.SavePerson(ctx, person); err != nil {
		return nil, err
	}
	return person, nil
}

// RemovePerson deletes the person and cancels any active session, so no
// reminder for them fires afterwards. Only workspace admins may remove people.
func RemovePerson(ctx context.Context, people storage.PersonRepository, sched *scheduler.Scheduler, user *internal.User, id string) error {
	if err := requireAdmin(user, "remove people"); err != nil {
		return err
	}
	if err := people.DeletePerson(ctx, user.Workspace(), id); err != nil {
		return err
	}
	sched.RemovePerson(id)
	return nil
}

func SetPersonNotifications(ctx context.Context, people storage.PersonRepository, sched *scheduler.Scheduler, user *internal.User, id string, req *NotificationToggleRequest) (*internal.Person, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	person, err := people.GetPerson(ctx, user.Workspace(), id)
	if err != nil {
		return nil, err
	}
	person.NotificationsEnabled = *req.Enabled
	if err := people.SavePerson(ctx, person); err != nil {
		return nil, err
	}
	sched.SetPersonNotifications(id, person.NotificationsEnabled)
	return person, nil
}
