package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/teambition/rrule-go"

	"semcal/internal/date"
	appLog "semcal/internal/log"
	"semcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 1000

// ImportConfig controls how feed events become tasks.
type ImportConfig struct {
	// Location is the zone dates and times are shown in. Nil means time.Local.
	Location *time.Location

	// RangeStart and RangeEnd bound the occurrence dates, inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps recurring events. Zero means 1000.
	MaxOccurrencesPerEvent int
}

// ImportResult is the outcome of ImportEvents.
type ImportResult struct {
	Tasks []model.Task
	// TruncatedUIDs lists recurring events that hit the cap.
	TruncatedUIDs []string
}

// ImportEvents turns feed events into read-only personal tasks, one per
// occurrence dated within the range. RRULE events are expanded with their
// EXDATEs removed, and RECURRENCE-ID overrides replace the instance they
// name.
func ImportEvents(events []ParsedEvent, cfg ImportConfig) (ImportResult, error) {
	var res ImportResult
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return res, errors.New("ics: import range end is before start")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	var uids []string
	base := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := base[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		base[ev.UID] = append(base[ev.UID], ev)
	}

	for _, uid := range uids {
		for _, ev := range base[uid] {
			starts, truncated := occurrenceStarts(ev, cfg)
			if truncated {
				res.TruncatedUIDs = append(res.TruncatedUIDs, uid)
				appLog.Error("ics: truncated occurrences for UID due to cap",
					errors.New("max occurrences reached"),
					"uid", uid,
					"cap", cfg.MaxOccurrencesPerEvent,
				)
			}
			for _, start := range starts {
				occ, end := ev, start.Add(ev.End.Sub(ev.Start))
				if o, ok := findOverride(overrides[uid], start); ok {
					occ, start, end = o, o.Start, o.End
				}
				if t, ok := toTask(occ, start, end, cfg); ok {
					res.Tasks = append(res.Tasks, t)
				}
			}
		}
	}
	return res, nil
}

// occurrenceStarts returns the start times of ev that may fall in range.
func occurrenceStarts(ev ParsedEvent, cfg ImportConfig) ([]time.Time, bool) {
	if ev.RawRRule == "" {
		return []time.Time{ev.Start}, false
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen by a day on both ends; toTask filters on the shown date.
	from := date.AddDays(cfg.RangeStart, -1).In(ev.Start.Location())
	to := date.AddDays(cfg.RangeEnd, 2).In(ev.Start.Location())
	starts := set.Between(from, to, true)
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		return starts[:cfg.MaxOccurrencesPerEvent], true
	}
	return starts, false
}

func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence.Equal(start) {
			return ov, true
		}
		// All-day RECURRENCE-IDs are parsed without a zone.
		if ov.AllDay && sameDay(*ov.Recurrence, start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func toTask(ev ParsedEvent, start, end time.Time, cfg ImportConfig) (model.Task, bool) {
	var day time.Time
	t := model.Task{
		Title:       ev.Summary,
		Description: strings.TrimSpace(strings.Join(nonEmpty(ev.Description, ev.Location), "\n")),
		Type:        model.TypePersonal,
		ReadOnly:    true,
	}
	if ev.AllDay {
		day = date.Of(start.Year(), start.Month(), start.Day())
	} else {
		local := start.In(cfg.Location)
		day = date.Of(local.Year(), local.Month(), local.Day())
		t.StartTime = local.Format("15:04")
		if e := end.In(cfg.Location); sameDay(e, local) && !e.Before(local) {
			t.EndTime = e.Format("15:04")
		}
	}
	if !date.Within(day, date.Truncate(cfg.RangeStart), date.Truncate(cfg.RangeEnd)) {
		return model.Task{}, false
	}
	if t.Title == "" {
		t.Title = "(untitled)"
	}
	t.Date = date.Format(day)
	t.ID = FeedTaskID(ev.Source.ID, ev.UID, t.Date)
	return t, true
}

// FeedTaskID is the id of the occurrence of a feed event on day. It is
// stable across refreshes.
func FeedTaskID(sourceID, uid, day string) string {
	sum := sha256.Sum256([]byte(uid))
	return "feed-" + slug.Make(sourceID) + "-" + hex.EncodeToString(sum[:6]) + "-" + day
}

func nonEmpty(ss ...string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
