package service

import (
	"context"
	"math"
	"time"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/storage"
)

const reportDays = 7

type PersonAverage struct {
	PersonID     string  `json:"person_id"`
	Name         string  `json:"name"`
	AverageHours float64 `json:"average_hours"`
	Sessions     int     `json:"sessions"`
}

type DayCount struct {
	Date     string `json:"date"`
	Label    string `json:"label"`
	Sessions int    `json:"sessions"`
}

type Report struct {
	AverageSleep      []PersonAverage `json:"average_sleep"`
	SessionsLast7Days []DayCount      `json:"sessions_last_7_days"`
	HasData           bool            `json:"has_data"`
}

// BuildReport averages completed session length per person and counts
// session starts per UTC day over the week ending at now. People with no
// completed session are left out of the averages.
func BuildReport(logs []internal.SleepLog, people []internal.Person, now time.Time) Report {
	ends := make(map[string]time.Time)
	for _, l := range logs {
		if l.Action == internal.ActionEnd {
			ends[l.SessionID] = l.Timestamp
		}
	}

	type total struct {
		d time.Duration
		n int
	}
	totals := make(map[string]*total)
	for _, l := range logs {
		if l.Action != internal.ActionStart {
			continue
		}
		end, ok := ends[l.SessionID]
		if !ok {
			continue
		}
		t := totals[l.PersonID]
		if t == nil {
			t = &total{}
			totals[l.PersonID] = t
		}
		t.d += end.Sub(l.Timestamp)
		t.n++
	}

	report := Report{
		AverageSleep:      []PersonAverage{},
		SessionsLast7Days: make([]DayCount, 0, reportDays),
		HasData:           len(logs) > 0 && len(people) > 0,
	}
	for _, p := range people {
		t := totals[p.ID]
		if t == nil || t.n == 0 {
			continue
		}
		hours := math.Round(t.d.Hours()/float64(t.n)*100) / 100
		if hours <= 0 {
			continue
		}
		report.AverageSleep = append(report.AverageSleep, PersonAverage{
			PersonID:     p.ID,
			Name:         p.Name,
			AverageHours: hours,
			Sessions:     t.n,
		})
	}

	today := now.UTC()
	index := make(map[string]int, reportDays)
	for i := reportDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		key := day.Format(dateLayout)
		index[key] = len(report.SessionsLast7Days)
		report.SessionsLast7Days = append(report.SessionsLast7Days, DayCount{Date: key, Label: day.Format("Jan 2")})
	}
	cutoff := now.AddDate(0, 0, -reportDays)
	for _, l := range logs {
		if l.Action != internal.ActionStart || l.Timestamp.Before(cutoff) {
			continue
		}
		if i, ok := index[l.Timestamp.UTC().Format(dateLayout)]; ok {
			report.SessionsLast7Days[i].Sessions++
		}
	}
	return report
}

func GetReport(ctx context.Context, store storage.Store, user *internal.User, now time.Time) (Report, error) {
	logs, err := store.ListLogs(ctx, user.Workspace(), storage.LogFilter{})
	if err != nil {
		return Report{}, err
	}
	people, err := store.ListPeople(ctx, user.Workspace())
	if err != nil {
		return Report{}, err
	}
	return BuildReport(logs, people, now), nil
}
