package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Cuffsss/studio/internal"
)

type Kind string

const (
	KindCheckupDue Kind = "checkup_due"
	KindOverdue    Kind = "overdue"
)

// AlarmSound is played by dashboards for overdue alerts.
const AlarmSound = "https://www.soundjay.com/buttons/sounds/beep-07a.mp3"

// Notification is a user-facing alert for one sleep session. Tag equals the
// session id so clients replace earlier alerts for the same session instead
// of stacking them.
type Notification struct {
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Tag        string    `json:"tag"`
	Renotify   bool      `json:"renotify"`
	Sound      string    `json:"sound,omitempty"`
	OwnerID    string    `json:"owner_id"`
	PersonID   string    `json:"person_id"`
	PersonName string    `json:"person_name"`
	SessionID  string    `json:"session_id"`
	At         time.Time `json:"at"`
}

func CheckupDue(s internal.SleepSession, at time.Time) Notification {
	return Notification{
		Kind:       KindCheckupDue,
		Title:      "Check-up Due!",
		Body:       fmt.Sprintf("It's time to check on %s.", s.PersonName),
		Tag:        s.ID,
		OwnerID:    s.OwnerID,
		PersonID:   s.PersonID,
		PersonName: s.PersonName,
		SessionID:  s.ID,
		At:         at,
	}
}

func Overdue(s internal.SleepSession, alarmIntervalMinutes int, at time.Time) Notification {
	return Notification{
		Kind:       KindOverdue,
		Title:      "Checkup Overdue!",
		Body:       fmt.Sprintf("Please check on %s. The alarm will sound again in %d minutes.", s.PersonName, alarmIntervalMinutes),
		Tag:        s.ID,
		Renotify:   true,
		Sound:      AlarmSound,
		OwnerID:    s.OwnerID,
		PersonID:   s.PersonID,
		PersonName: s.PersonName,
		SessionID:  s.ID,
		At:         at,
	}
}

// Notifier delivers notifications. Delivery is best-effort: callers log a
// returned error and move on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogNotifier struct {
	logger internal.Logger
}

func NewLogNotifier(logger internal.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.logger.Infof("notify: %s session=%s person=%q owner=%s", n.Kind, n.SessionID, n.PersonName, n.OwnerID)
	return nil
}
