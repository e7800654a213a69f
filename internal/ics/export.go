package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/gosimple/slug"

	"semcal/internal/date"
	"semcal/internal/model"
)

const productID = "-//semcal//semester calendar//EN"

// ExportConfig describes the calendar written by Export.
type ExportConfig struct {
	// Name is the calendar name; its slug is the UID domain.
	Name string
	// Location is the zone task times are read in. Nil means time.Local.
	Location *time.Location
	// Now stamps DTSTAMP.
	Now time.Time
}

// Export writes tasks as a VCALENDAR. Tasks with a start time become timed
// events; the rest are all-day events. Read-only feed tasks are left out.
func Export(w io.Writer, tasks []model.Task, cfg ExportConfig) error {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if cfg.Name != "" {
		cal.SetName(cfg.Name)
		cal.SetXWRCalName(cfg.Name)
	}
	domain := ExportFileBase(cfg.Name)

	for _, t := range tasks {
		if t.ReadOnly || t.Skipped {
			continue
		}
		day, err := date.Parse(t.Date)
		if err != nil {
			return fmt.Errorf("ics: export %s: %w", t.ID, err)
		}

		ev := cal.AddEvent(t.ID + "@" + domain)
		ev.SetDtStampTime(cfg.Now)
		ev.SetSummary(t.Title)
		if desc := describe(t); desc != "" {
			ev.SetDescription(desc)
		}
		ev.SetProperty(ical.ComponentPropertyCategories, string(t.Type))

		if t.StartTime == "" {
			ev.SetAllDayStartAt(day)
			ev.SetAllDayEndAt(date.AddDays(day, 1))
			continue
		}
		start, err := clockOn(day, t.StartTime, cfg.Location)
		if err != nil {
			return fmt.Errorf("ics: export %s: %w", t.ID, err)
		}
		end := start.Add(time.Hour)
		if t.EndTime != "" {
			if end, err = clockOn(day, t.EndTime, cfg.Location); err != nil {
				return fmt.Errorf("ics: export %s: %w", t.ID, err)
			}
		}
		ev.SetStartAt(start)
		ev.SetEndAt(end)
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

// ExportFileBase is the slug used for the export file name and UID domain.
func ExportFileBase(name string) string {
	if s := slug.Make(name); s != "" {
		return s
	}
	return "semcal"
}

func clockOn(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	hm, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hm.Hour(), hm.Minute(), 0, 0, loc), nil
}

func describe(t model.Task) string {
	var parts []string
	if t.Description != "" {
		parts = append(parts, t.Description)
	}
	if t.ActivityType != "" {
		parts = append(parts, "Activity: "+string(t.ActivityType))
	}
	if t.ExamType != "" {
		parts = append(parts, "Exam: "+string(t.ExamType))
	}
	if t.Notes != "" {
		parts = append(parts, "Notes: "+t.Notes)
	}
	return strings.Join(parts, "\n")
}
