package model

import (
	"slices"

	"semcal/internal/date"
)

// TaskType is the broad category of a task.
type TaskType string

const (
	TypeCourse   TaskType = "course"
	TypePersonal TaskType = "personal"
	TypeExam     TaskType = "exam"
)

// ActivityType is the teaching format of a course task.
type ActivityType string

const (
	ActivityCourse     ActivityType = "course"
	ActivitySeminar    ActivityType = "seminar"
	ActivityLaboratory ActivityType = "laboratory"
	ActivityProject    ActivityType = "project"
)

// ExamType is the format of an exam task.
type ExamType string

const (
	ExamWritten   ExamType = "written_exam"
	ExamOral      ExamType = "oral_exam"
	ExamPractical ExamType = "practical_exam"
	ExamGeneric   ExamType = "exam"
)

// Frequency is how often a template recurs.
type Frequency string

const (
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
)

// Task is a single task record. The same shape carries templates of
// recurring course activities, their dated occurrences and one-off tasks;
// see Kind.
//
// Dates are ISO "YYYY-MM-DD" strings and times are "HH:mm".
type Task struct {
	ID          string   `json:"id" yaml:"id" validate:"required"`
	Title       string   `json:"title" yaml:"title" validate:"required"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Type        TaskType `json:"type" yaml:"type" validate:"required,oneof=course personal exam"`
	Date        string   `json:"date" yaml:"date" validate:"required,isodate"`
	Completed   bool     `json:"completed" yaml:"completed"`
	Notes       string   `json:"notes,omitempty" yaml:"notes,omitempty"`
	StartTime   string   `json:"startTime,omitempty" yaml:"start_time,omitempty" validate:"omitempty,clock"`
	EndTime     string   `json:"endTime,omitempty" yaml:"end_time,omitempty" validate:"omitempty,clock"`

	// CourseName is kept for records written before Title carried the
	// course name.
	CourseName string `json:"courseName,omitempty" yaml:"course_name,omitempty"`

	ActivityType ActivityType `json:"activityType,omitempty" yaml:"activity_type,omitempty" validate:"omitempty,oneof=course seminar laboratory project"`
	Frequency    Frequency    `json:"frequency,omitempty" yaml:"frequency,omitempty" validate:"omitempty,oneof=weekly biweekly"`
	SemesterID   string       `json:"semesterId,omitempty" yaml:"semester_id,omitempty"`
	StartDate    string       `json:"startDate,omitempty" yaml:"start_date,omitempty" validate:"omitempty,isodate"`
	EndDate      string       `json:"endDate,omitempty" yaml:"end_date,omitempty" validate:"omitempty,isodate"`
	// DayOfWeek is 0 for Sunday through 6 for Saturday.
	DayOfWeek *int `json:"dayOfWeek,omitempty" yaml:"day_of_week,omitempty" validate:"omitempty,min=0,max=6"`

	ExamType      ExamType `json:"examType,omitempty" yaml:"exam_type,omitempty" validate:"omitempty,oneof=exam oral_exam written_exam practical_exam"`
	ExamSessionID string   `json:"examSessionId,omitempty" yaml:"exam_session_id,omitempty"`
	ExamResult    *float64 `json:"examResult,omitempty" yaml:"exam_result,omitempty" validate:"omitempty,min=0"`
	Credits       *float64 `json:"credits,omitempty" yaml:"credits,omitempty" validate:"omitempty,min=0"`

	// TemplateID links an occurrence to the template it was generated from.
	TemplateID string `json:"templateId,omitempty" yaml:"template_id,omitempty"`
	// OccurrenceDate is the generated slot an edited occurrence replaces.
	// Empty means Date.
	OccurrenceDate string `json:"occurrenceDate,omitempty" yaml:"occurrence_date,omitempty" validate:"omitempty,isodate"`
	// Skipped marks a deleted occurrence of a template.
	Skipped bool `json:"skipped,omitempty" yaml:"skipped,omitempty"`

	// ReadOnly is set on tasks imported from external calendar feeds.
	ReadOnly bool `json:"readOnly,omitempty" yaml:"-"`
}

// Kind is the role a task record plays.
type Kind int

const (
	KindStandalone Kind = iota
	KindTemplate
	KindInstance
)

func (k Kind) String() string {
	switch k {
	case KindTemplate:
		return "template"
	case KindInstance:
		return "instance"
	default:
		return "standalone"
	}
}

// Kind classifies t. Instances carry a TemplateID; templates carry a
// semester and a date range and an id without a "-YYYY-MM-DD" suffix;
// everything else is standalone.
func (t Task) Kind() Kind {
	switch {
	case t.TemplateID != "":
		return KindInstance
	case t.SemesterID != "" && t.StartDate != "" && t.EndDate != "" && !hasOccurrenceSuffix(t.ID):
		return KindTemplate
	default:
		return KindStandalone
	}
}

// IsRecurring reports whether t has every field needed to expand it.
func (t Task) IsRecurring() bool {
	return t.SemesterID != "" && t.StartDate != "" && t.EndDate != "" && t.Frequency != ""
}

// SlotDate returns the generated occurrence date an instance stands for.
func (t Task) SlotDate() string {
	if t.OccurrenceDate != "" {
		return t.OccurrenceDate
	}
	return t.Date
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	out := t
	if t.DayOfWeek != nil {
		v := *t.DayOfWeek
		out.DayOfWeek = &v
	}
	if t.ExamResult != nil {
		v := *t.ExamResult
		out.ExamResult = &v
	}
	if t.Credits != nil {
		v := *t.Credits
		out.Credits = &v
	}
	return out
}

// CloneAll deep-copies a task list.
func CloneAll(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// OccurrenceID is the id of the occurrence of templateID on day.
func OccurrenceID(templateID, day string) string {
	return templateID + "-" + day
}

// SlotKey identifies one generated occurrence of a template.
type SlotKey struct {
	TemplateID string
	Date       string
}

// Key returns the slot an instance overrides.
func (t Task) Key() SlotKey {
	return SlotKey{TemplateID: t.TemplateID, Date: t.SlotDate()}
}

// UpgradeLegacy returns a copy of tasks in which occurrence records that
// predate the TemplateID field are linked to their template.
//
// A record is upgraded only when its id is "<template id>-YYYY-MM-DD" and
// that template id belongs to a template in the same list.
func UpgradeLegacy(tasks []Task) []Task {
	templates := make(map[string]struct{})
	for _, t := range tasks {
		if t.Kind() == KindTemplate {
			templates[t.ID] = struct{}{}
		}
	}

	out := CloneAll(tasks)
	for i, t := range out {
		if t.TemplateID != "" {
			continue
		}
		prefix, day, ok := SplitOccurrenceID(t.ID)
		if !ok {
			continue
		}
		if _, ok := templates[prefix]; !ok {
			continue
		}
		out[i].TemplateID = prefix
		out[i].OccurrenceDate = day
	}
	return out
}

// SplitOccurrenceID splits an id of the form "<template id>-YYYY-MM-DD".
func SplitOccurrenceID(id string) (templateID, day string, ok bool) {
	if len(id) <= len(date.Layout)+1 {
		return "", "", false
	}
	cut := len(id) - len(date.Layout)
	if id[cut-1] != '-' {
		return "", "", false
	}
	if _, err := date.Parse(id[cut:]); err != nil {
		return "", "", false
	}
	return id[:cut-1], id[cut:], true
}

func hasOccurrenceSuffix(id string) bool {
	_, _, ok := SplitOccurrenceID(id)
	return ok
}

// IDs returns the ids of tasks in order.
func IDs(tasks []Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

// IndexOf returns the position of the task with id, or -1.
func IndexOf(tasks []Task, id string) int {
	return slices.IndexFunc(tasks, func(t Task) bool { return t.ID == id })
}
