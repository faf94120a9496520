package internal

import "time"

type Action string

const (
	ActionStart   Action = "start"
	ActionCheckup Action = "checkup"
	ActionEnd     Action = "end"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type User struct {
	ID             string    `json:"id" validate:"required"`
	Email          string    `json:"email" validate:"required,email"`
	Name           string    `json:"name,omitempty"`
	PasswordHash   string    `json:"-"`
	OrganizationID string    `json:"organization_id,omitempty"`
	WorkspaceID    string    `json:"workspace_id,omitempty"`
	Role           Role      `json:"role,omitempty" validate:"omitempty,oneof=admin member"`
	CreatedAt      time.Time `json:"created_at"`
}

// Workspace is the owner key of the people, sessions, logs and settings the
// user works on. Members of an organization share its owner's workspace.
func (u *User) Workspace() string {
	if u.WorkspaceID != "" {
		return u.WorkspaceID
	}
	return u.ID
}

// IsAdmin reports whether the user manages their workspace. Users without a
// role own a personal workspace.
func (u *User) IsAdmin() bool {
	return u.Role != RoleMember
}

// Organization lets an owner invite members into their workspace.
type Organization struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name" validate:"required,max=100"`
	OwnerID     string    `json:"owner_id" validate:"required"`
	InviteToken string    `json:"invite_token,omitempty" validate:"required"`
	CreatedAt   time.Time `json:"created_at"`
}

// Settings are the per-user reminder preferences consumed by the scheduler.
type Settings struct {
	CheckupIntervalMinutes int  `json:"checkup_interval_minutes" validate:"gte=1"`
	AlarmIntervalMinutes   int  `json:"alarm_interval_minutes" validate:"gte=1"`
	NotificationsEnabled   bool `json:"notifications_enabled"`
}

func (s Settings) CheckupInterval() time.Duration {
	return time.Duration(s.CheckupIntervalMinutes) * time.Minute
}

func (s Settings) AlarmInterval() time.Duration {
	return time.Duration(s.AlarmIntervalMinutes) * time.Minute
}

type Person struct {
	ID                   string    `json:"id" validate:"required"`
	OwnerID              string    `json:"owner_id" validate:"required"`
	Name                 string    `json:"name" validate:"required"`
	Age                  *int      `json:"age,omitempty" validate:"omitempty,gte=0"`
	Notes                string    `json:"notes,omitempty"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
}

type SleepSession struct {
	ID         string        `json:"id"`
	OwnerID    string        `json:"owner_id"`
	PersonID   string        `json:"person_id"`
	PersonName string        `json:"person_name"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	Checkups   []time.Time   `json:"checkups"`
	Status     SessionStatus `json:"status"`
	Notes      string        `json:"notes,omitempty"`
}

// LastEvent is the time of the latest check-up, or the start time when none
// has been logged yet.
func (s SleepSession) LastEvent() time.Time {
	if n := len(s.Checkups); n > 0 {
		return s.Checkups[n-1]
	}
	return s.StartTime
}

type SleepLog struct {
	ID         string    `json:"id" validate:"required"`
	OwnerID    string    `json:"owner_id" validate:"required"`
	PersonID   string    `json:"person_id" validate:"required"`
	PersonName string    `json:"person_name"`
	Action     Action    `json:"action" validate:"required,oneof=start checkup end"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	SessionID  string    `json:"session_id" validate:"required"`
	Notes      string    `json:"notes,omitempty"`
}
