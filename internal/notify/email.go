package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/Cuffsss/studio/internal"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// UserLookup resolves the recipient of an e-mail alert.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*internal.User, error)
}

// EmailNotifier mails overdue alerts to the session owner through SendGrid.
// Check-up due reminders stay on the dashboard.
type EmailNotifier struct {
	key    string
	from   *sgmail.Email
	users  UserLookup
	logger internal.Logger
	api    func(rest.Request) (*rest.Response, error)
}

func NewEmailNotifier(apiKey, fromAddress string, users UserLookup, logger internal.Logger) *EmailNotifier {
	return &EmailNotifier{
		key:    apiKey,
		from:   sgmail.NewEmail("Sleep Tracker", fromAddress),
		users:  users,
		logger: logger,
		api:    sendgrid.API,
	}
}

func (e *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	if e.key == "" || n.Kind != KindOverdue {
		return nil
	}
	user, err := e.users.GetUser(ctx, n.OwnerID)
	if err != nil {
		return fmt.Errorf("email: resolve owner %s: %w", n.OwnerID, err)
	}

	req := sendgrid.GetRequest(e.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(e.prepare(user, n))

	go func() {
		res, err := e.api(req)
		if err != nil {
			e.logger.Errorf("email: sending %s for session %s: %v", n.Kind, n.SessionID, err)
		} else if res.StatusCode >= http.StatusBadRequest {
			e.logger.Errorf("email: sending %s for session %s - status: %d - body: %s", n.Kind, n.SessionID, res.StatusCode, res.Body)
		}
	}()
	return nil
}

func (e *EmailNotifier) prepare(user *internal.User, n Notification) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = "[Sleep Tracker] " + n.Title
	p.AddTos(sgmail.NewEmail(user.Name, user.Email))

	text := fmt.Sprintf("%s\n\nSession started for %s. Alert raised at %s.", n.Body, n.PersonName, n.At.Format("15:04:05 MST"))

	m := sgmail.NewV3Mail()
	m.SetFrom(e.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", text))
	return m
}
