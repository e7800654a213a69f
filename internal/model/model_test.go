package model

import (
	"errors"
	"testing"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestKind(t *testing.T) {
	cases := []struct {
		name string
		task Task
		want Kind
	}{
		{"one-off", Task{ID: "1", Date: "2025-10-01"}, KindStandalone},
		{"template", Task{ID: "t1", SemesterID: "first-2025", StartDate: "2025-10-01", EndDate: "2026-01-18", Frequency: Weekly}, KindTemplate},
		{"template without frequency", Task{ID: "t1", SemesterID: "first-2025", StartDate: "2025-10-01", EndDate: "2026-01-18"}, KindTemplate},
		{"semester without range", Task{ID: "t1", SemesterID: "first-2025"}, KindStandalone},
		{"dated copy of a template", Task{ID: "t1-2025-10-06", SemesterID: "first-2025", StartDate: "2025-10-01", EndDate: "2026-01-18", Frequency: Weekly}, KindStandalone},
		{"instance", Task{ID: "t1-2025-10-06", TemplateID: "t1", SemesterID: "first-2025", StartDate: "2025-10-01", EndDate: "2026-01-18"}, KindInstance},
	}
	for _, c := range cases {
		if got := c.task.Kind(); got != c.want {
			t.Errorf("%s: Kind() = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestUpgradeLegacy(t *testing.T) {
	tasks := []Task{
		{ID: "t1", SemesterID: "first-2025", StartDate: "2025-10-06", EndDate: "2025-11-03", Frequency: Weekly},
		{ID: "t1-2025-10-13", SemesterID: "first-2025", StartDate: "2025-10-06", EndDate: "2025-11-03", Frequency: Weekly, Date: "2025-10-15"},
		{ID: "orphan-2025-10-13", Date: "2025-10-13"},
		{ID: "t1-2025-13-40", Date: "2025-10-13"},
		{ID: "x", Date: "2025-10-13"},
	}
	out := UpgradeLegacy(tasks)

	if got := out[1]; got.TemplateID != "t1" || got.OccurrenceDate != "2025-10-13" || got.Kind() != KindInstance {
		t.Errorf("legacy occurrence not upgraded: %+v", got)
	}
	if got := out[1].SlotDate(); got != "2025-10-13" {
		t.Errorf("SlotDate() = %s, want 2025-10-13", got)
	}
	for _, i := range []int{0, 2, 3, 4} {
		if out[i].TemplateID != "" {
			t.Errorf("%s should not be linked, got template %q", out[i].ID, out[i].TemplateID)
		}
	}
	if tasks[1].TemplateID != "" {
		t.Errorf("UpgradeLegacy mutated its input")
	}
}

func TestSplitOccurrenceID(t *testing.T) {
	cases := []struct {
		id, tpl, day string
		ok           bool
	}{
		{"t1-2025-10-13", "t1", "2025-10-13", true},
		{"a-b-2026-02-28", "a-b", "2026-02-28", true},
		{"t1-2025-13-40", "", "", false},
		{"t12025-10-13", "", "", false},
		{"-2025-10-13", "", "", false},
		{"2025-10-13", "", "", false},
		{"t1", "", "", false},
	}
	for _, c := range cases {
		tpl, day, ok := SplitOccurrenceID(c.id)
		if tpl != c.tpl || day != c.day || ok != c.ok {
			t.Errorf("SplitOccurrenceID(%q) = %q, %q, %v", c.id, tpl, day, ok)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := Task{ID: "e", DayOfWeek: intPtr(1), ExamResult: floatPtr(8), Credits: floatPtr(5)}
	b := a.Clone()
	*b.DayOfWeek = 3
	*b.ExamResult = 1
	*b.Credits = 1
	if *a.DayOfWeek != 1 || *a.ExamResult != 8 || *a.Credits != 5 {
		t.Errorf("Clone shares pointers with the original: %+v", a)
	}
}

func TestValidate(t *testing.T) {
	ok := Task{ID: "1", Title: "Algebra", Type: TypeCourse, Date: "2025-10-06", StartTime: "08:00", EndTime: "10:00"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	bad := []Task{
		{ID: "1", Title: "x", Type: "meeting", Date: "2025-10-06"},
		{ID: "1", Title: "x", Type: TypeCourse, Date: "06/10/2025"},
		{ID: "1", Title: "x", Type: TypeCourse, Date: "2025-10-06", StartTime: "8am"},
		{ID: "1", Title: "x", Type: TypeCourse, Date: "2025-10-06", StartTime: "10:00", EndTime: "09:00"},
		{ID: "1", Title: "x", Type: TypeCourse, Date: "2025-10-06", StartDate: "2025-12-01", EndDate: "2025-10-01"},
		{ID: "1", Title: "x", Type: TypeCourse, Date: "2025-10-06", DayOfWeek: intPtr(7)},
		{ID: "1", Title: "x", Type: TypeCourse, Date: "2025-10-06", Frequency: "daily"},
		{ID: "1", Title: "x", Type: TypePersonal, Date: "2025-10-06", Credits: floatPtr(5)},
		{ID: "", Title: "x", Type: TypeCourse, Date: "2025-10-06"},
	}
	for i, task := range bad {
		if err := task.Validate(); !errors.Is(err, ErrInvalidTask) {
			t.Errorf("case %d: Validate() = %v, want ErrInvalidTask", i, err)
		}
	}
}
