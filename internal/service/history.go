package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/storage"
)

const (
	ExportText = "text"
	ExportCSV  = "csv"

	dateLayout   = "2006-01-02"
	exportLayout = "2006-01-02 15:04:05"
)

// LogQuery is the archive filter shared by listing and export.
type LogQuery struct {
	Person string `form:"person" validate:"omitempty,max=64"`
	Date   string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Format string `form:"format" validate:"omitempty,oneof=text csv"`
}

func (q *LogQuery) Filter() (storage.LogFilter, error) {
	if err := ValidateRequest(q); err != nil {
		return storage.LogFilter{}, err
	}
	f := storage.LogFilter{PersonID: q.Person}
	if q.Date != "" {
		day, err := time.Parse(dateLayout, q.Date)
		if err != nil {
			return storage.LogFilter{}, err
		}
		f.Day = day
	}
	return f, nil
}

// ListLogs returns matching entries newest first.
func ListLogs(ctx context.Context, logs storage.LogRepository, user *internal.User, q *LogQuery) ([]internal.SleepLog, error) {
	f, err := q.Filter()
	if err != nil {
		return nil, err
	}
	return logs.ListLogs(ctx, user.Workspace(), f)
}

// WriteTextExport writes one line per entry as "<time> - <name>: <ACTION>"
// followed by an indented notes line when the entry has notes.
func WriteTextExport(w io.Writer, logs []internal.SleepLog, loc *time.Location) error {
	for _, l := range logs {
		line := fmt.Sprintf("%s - %s: %s\n", l.Timestamp.In(loc).Format(exportLayout), l.PersonName, strings.ToUpper(string(l.Action)))
		if l.Notes != "" {
			line += "  Notes: " + l.Notes + "\n"
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

func WriteCSVExport(w io.Writer, logs []internal.SleepLog, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "person", "action", "notes", "session_id"}); err != nil {
		return err
	}
	for _, l := range logs {
		record := []string{
			l.Timestamp.In(loc).Format(time.RFC3339),
			l.PersonName,
			string(l.Action),
			l.Notes,
			l.SessionID,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var whitespace = regexp.MustCompile(`\s+`)

// ExportFilename names an export after its filters, e.g.
// sleep-logs-Ada_Lovelace-2024-03-01.csv or sleep-logs-all-people-all-dates.txt.
func ExportFilename(personName, date, format string) string {
	person := "all-people"
	if personName != "" {
		person = whitespace.ReplaceAllString(strings.TrimSpace(personName), "_")
	}
	if date == "" {
		date = "all-dates"
	}
	ext := "txt"
	if format == ExportCSV {
		ext = "csv"
	}
	return fmt.Sprintf("sleep-logs-%s-%s.%s", person, date, ext)
}

// Export renders the owner's filtered logs and returns the attachment name.
func Export(ctx context.Context, w io.Writer, store storage.Store, user *internal.User, q *LogQuery, loc *time.Location) (string, error) {
	logs, err := ListLogs(ctx, store, user, q)
	if err != nil {
		return "", err
	}
	personName := ""
	if q.Person != "" {
		personName = "person"
		if p, err := store.GetPerson(ctx, user.Workspace(), q.Person); err == nil {
			personName = p.Name
		}
	}
	name := ExportFilename(personName, q.Date, q.Format)
	if q.Format == ExportCSV {
		return name, WriteCSVExport(w, logs, loc)
	}
	return name, WriteTextExport(w, logs, loc)
}

func ResetLogs(ctx context.Context, logs storage.LogRepository, user *internal.User) error {
	if err := requireAdmin(user, "reset logs"); err != nil {
		return err
	}
	return logs.ResetLogs(ctx, user.Workspace())
}
