package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"semcal/internal/date"
	appLog "semcal/internal/log"
	"semcal/internal/model"
)

const (
	defaultMaxOccurrences = 500
)

// Expander turns templates of recurring course activities into dated
// occurrences.
type Expander struct {
	// MaxOccurrences caps the occurrences generated per template. If zero,
	// defaultMaxOccurrences is used.
	MaxOccurrences int
}

// Result is the outcome of expanding one task.
type Result struct {
	Tasks []model.Task
	// Truncated is set when the template hit MaxOccurrences.
	Truncated bool
}

// Expand expands t with the default Expander.
func Expand(t model.Task) ([]model.Task, error) {
	res, err := Expander{}.Expand(t)
	return res.Tasks, err
}

// Expand generates one occurrence of t per weekly or biweekly step between
// its StartDate and EndDate, inclusive.
//
//   - A task lacking SemesterID, StartDate, EndDate or Frequency is not
//     recurring and is returned unchanged as the only element.
//   - Occurrences fall on DayOfWeek, or on StartDate's weekday when unset.
//   - Each occurrence is a copy of t with ID "<t.ID>-YYYY-MM-DD", Date set to
//     that day and TemplateID/OccurrenceDate linking it back to t.
//   - When no occurrence fits in the range, t itself is returned so the
//     activity still shows up somewhere.
//
// Only malformed dates are reported as errors (wrapping date.ErrInvalidDate).
func (e Expander) Expand(t model.Task) (Result, error) {
	if !t.IsRecurring() {
		return Result{Tasks: []model.Task{t}}, nil
	}

	rule, err := RuleFor(t)
	if err != nil {
		return Result{}, err
	}

	limit := e.MaxOccurrences
	if limit <= 0 {
		limit = defaultMaxOccurrences
	}

	var res Result
	next := rule.Iterator()
	for {
		day, ok := next()
		if !ok {
			break
		}
		if len(res.Tasks) == limit {
			res.Truncated = true
			appLog.Error("recur: truncated occurrences for template",
				errors.New("max occurrences reached"),
				"template_id", t.ID,
				"cap", limit,
			)
			break
		}
		res.Tasks = append(res.Tasks, Occurrence(t, day))
	}

	if len(res.Tasks) == 0 {
		res.Tasks = []model.Task{t}
	}
	return res, nil
}

// RuleFor builds the recurrence rule of a recurring template: weekly or every
// other week on one weekday, from the first matching day on or after
// StartDate until EndDate.
func RuleFor(t model.Task) (*rrule.RRule, error) {
	start, err := date.Parse(t.StartDate)
	if err != nil {
		return nil, fmt.Errorf("recur: template %s start: %w", t.ID, err)
	}
	end, err := date.Parse(t.EndDate)
	if err != nil {
		return nil, fmt.Errorf("recur: template %s end: %w", t.ID, err)
	}

	interval, err := intervalOf(t.Frequency)
	if err != nil {
		return nil, fmt.Errorf("recur: template %s: %w", t.ID, err)
	}

	first := FirstOccurrence(start, TargetWeekday(t, start))
	opt := rrule.ROption{
		Freq:     rrule.WEEKLY,
		Interval: interval,
		Dtstart:  first,
		// The rule is built in UTC so the until bound needs the full day.
		Until: end.Add(24*time.Hour - time.Nanosecond),
	}
	return rrule.NewRRule(opt)
}

// TargetWeekday returns the weekday occurrences of t fall on. A DayOfWeek
// outside 0..6 is ignored in favour of start's weekday.
func TargetWeekday(t model.Task, start time.Time) time.Weekday {
	if t.DayOfWeek != nil && *t.DayOfWeek >= 0 && *t.DayOfWeek <= 6 {
		return time.Weekday(*t.DayOfWeek)
	}
	return start.Weekday()
}

// FirstOccurrence returns the first day on or after start that is a target
// weekday.
func FirstOccurrence(start time.Time, target time.Weekday) time.Time {
	offset := ((int(target)-int(start.Weekday()))%7 + 7) % 7
	return date.AddDays(start, offset)
}

// Occurrence materialises the occurrence of template on day.
func Occurrence(template model.Task, day time.Time) model.Task {
	iso := date.Format(day)
	occ := template.Clone()
	occ.ID = model.OccurrenceID(template.ID, iso)
	occ.Date = iso
	occ.TemplateID = template.ID
	occ.OccurrenceDate = iso
	return occ
}

func intervalOf(f model.Frequency) (int, error) {
	switch f {
	case model.Weekly:
		return 1, nil
	case model.Biweekly:
		return 2, nil
	}
	return 0, fmt.Errorf("unsupported frequency %q", f)
}
