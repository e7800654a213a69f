package academic

import (
	"encoding/json"
	"fmt"
	"time"

	"semcal/internal/date"
)

const (
	// SemesterWeeks is the number of instructional weeks in each semester.
	// Recess weeks inside the first semester are not counted.
	SemesterWeeks = 14
	// ExamWeeks is the length of the exam session.
	ExamWeeks = 3
	// BreakWeeks is the length of the inter-semester break.
	BreakWeeks = 1
)

// Period names as shown to users.
const (
	FirstSemesterName  = "First Semester"
	ExamSessionName    = "Exam Session"
	BreakName          = "Intersemestrial Break"
	SecondSemesterName = "Second Semester"
)

// Period is one computed block of the academic year. All dates are calendar
// dates (UTC midnight). BreakStart/BreakEnd are only set on the first
// semester and delimit the winter recess.
type Period struct {
	ID        string
	Name      string
	Start     time.Time
	End       time.Time
	WeekCount int
	Year      int

	BreakStart time.Time
	BreakEnd   time.Time
}

// HasRecess reports whether the period carries a winter recess window.
func (p Period) HasRecess() bool {
	return !p.BreakStart.IsZero()
}

// Contains reports whether d lies in [Start, End].
func (p Period) Contains(d time.Time) bool {
	return date.Within(d, p.Start, p.End)
}

type periodJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	BreakStart string `json:"breakStart,omitempty"`
	BreakEnd   string `json:"breakEnd,omitempty"`
	WeekCount  int    `json:"weekCount"`
	Year       int    `json:"year"`
}

// MarshalJSON renders dates as "YYYY-MM-DD".
func (p Period) MarshalJSON() ([]byte, error) {
	out := periodJSON{
		ID:        p.ID,
		Name:      p.Name,
		StartDate: date.Format(p.Start),
		EndDate:   date.Format(p.End),
		WeekCount: p.WeekCount,
		Year:      p.Year,
	}
	if p.HasRecess() {
		out.BreakStart = date.Format(p.BreakStart)
		out.BreakEnd = date.Format(p.BreakEnd)
	}
	return json.Marshal(out)
}

// AcademicYear aggregates the four periods of one academic year, starting in
// the autumn of Year.
type AcademicYear struct {
	FirstSemester  Period
	ExamSession    Period
	Break          Period
	SecondSemester Period

	IntersemestrialBreakStart time.Time
	IntersemestrialBreakEnd   time.Time
	Year                      int
}

type academicYearJSON struct {
	FirstSemester             Period `json:"firstSemester"`
	ExamSession               Period `json:"examSession"`
	Break                     Period `json:"break"`
	SecondSemester            Period `json:"secondSemester"`
	IntersemestrialBreakStart string `json:"intersemestrialBreakStart"`
	IntersemestrialBreakEnd   string `json:"intersemestrialBreakEnd"`
	Year                      int    `json:"year"`
}

// MarshalJSON renders dates as "YYYY-MM-DD".
func (ay AcademicYear) MarshalJSON() ([]byte, error) {
	return json.Marshal(academicYearJSON{
		FirstSemester:             ay.FirstSemester,
		ExamSession:               ay.ExamSession,
		Break:                     ay.Break,
		SecondSemester:            ay.SecondSemester,
		IntersemestrialBreakStart: date.Format(ay.IntersemestrialBreakStart),
		IntersemestrialBreakEnd:   date.Format(ay.IntersemestrialBreakEnd),
		Year:                      ay.Year,
	})
}

// Periods returns the four periods in chronological order.
func (ay AcademicYear) Periods() []Period {
	return []Period{ay.FirstSemester, ay.ExamSession, ay.Break, ay.SecondSemester}
}

// FirstSemesterDates holds the raw boundaries of the first semester.
type FirstSemesterDates struct {
	// Start is the Monday week numbering starts from.
	Start time.Time
	// End is the Sunday closing the last instructional week.
	End time.Time
	// RecessStart is the Monday the winter recess begins.
	RecessStart time.Time
	// RecessEnd is the Sunday before classes resume.
	RecessEnd time.Time
	// WeeksBeforeRecess is the number of instructional weeks before RecessStart.
	WeeksBeforeRecess int
}

// ComputeFirstSemester computes the first semester of the academic year that
// starts in the autumn of year.
//
// Week numbering starts on the Monday of October 2's week, or on the following
// Monday when October 2 is a weekend. The winter recess starts on the Monday of
// Christmas' week and lasts until classes resume on the Monday of the second
// week of January. The semester then runs for as many weeks as are needed to
// complete SemesterWeeks instructional weeks.
func ComputeFirstSemester(year int) FirstSemesterDates {
	anchor := date.Of(year, time.October, 2)
	start := date.StartOfWeek(anchor)
	if date.IsWeekend(anchor) {
		start = date.NextMonday(anchor)
	}

	christmas := date.Of(year, time.December, 25)
	recessStart := date.StartOfWeek(christmas)
	if christmas.Weekday() == time.Friday {
		recessStart = date.StartOfWeek(date.AddDays(christmas, -2))
	}

	firstWeekOfJanuary := date.StartOfWeek(date.Of(year+1, time.January, 1))
	resume := date.AddWeeks(firstWeekOfJanuary, 1)
	recessEnd := date.AddDays(resume, -1)

	before := date.WeeksBetween(start, recessStart)
	after := SemesterWeeks - before
	end := date.AddDays(date.AddWeeks(resume, after-1), 6)

	return FirstSemesterDates{
		Start:             start,
		End:               end,
		RecessStart:       recessStart,
		RecessEnd:         recessEnd,
		WeeksBeforeRecess: before,
	}
}

// ComputeExamSession starts on the Monday after the first semester ends and
// lasts ExamWeeks weeks.
func ComputeExamSession(firstSemesterEnd time.Time) (start, end time.Time) {
	start = date.NextMonday(firstSemesterEnd)
	end = date.AddDays(start, 7*ExamWeeks-1)
	return start, end
}

// ComputeBreak starts on the Monday after the exam session ends and lasts
// BreakWeeks weeks.
func ComputeBreak(examEnd time.Time) (start, end time.Time) {
	start = date.NextMonday(examEnd)
	end = date.AddDays(start, 7*BreakWeeks-1)
	return start, end
}

// ComputeSecondSemester starts on the Monday after the break and lasts
// SemesterWeeks weeks.
func ComputeSecondSemester(breakEnd time.Time) (start, end time.Time) {
	start = date.NextMonday(breakEnd)
	end = date.AddDays(date.AddWeeks(start, SemesterWeeks-1), 6)
	return start, end
}

// New builds the AcademicYear starting in the autumn of year. The result only
// depends on year.
func New(year int) AcademicYear {
	first := ComputeFirstSemester(year)
	examStart, examEnd := ComputeExamSession(first.End)
	breakStart, breakEnd := ComputeBreak(examEnd)
	secondStart, secondEnd := ComputeSecondSemester(breakEnd)

	return AcademicYear{
		FirstSemester: Period{
			ID:         PeriodID(KindFirst, year),
			Name:       FirstSemesterName,
			Start:      first.Start,
			End:        first.End,
			WeekCount:  SemesterWeeks,
			Year:       year,
			BreakStart: first.RecessStart,
			BreakEnd:   first.RecessEnd,
		},
		ExamSession: Period{
			ID:        PeriodID(KindExam, year),
			Name:      ExamSessionName,
			Start:     examStart,
			End:       examEnd,
			WeekCount: ExamWeeks,
			Year:      year,
		},
		Break: Period{
			ID:        PeriodID(KindBreak, year),
			Name:      BreakName,
			Start:     breakStart,
			End:       breakEnd,
			WeekCount: BreakWeeks,
			Year:      year,
		},
		SecondSemester: Period{
			ID:        PeriodID(KindSecond, year),
			Name:      SecondSemesterName,
			Start:     secondStart,
			End:       secondEnd,
			WeekCount: SemesterWeeks,
			Year:      year,
		},
		IntersemestrialBreakStart: breakStart,
		IntersemestrialBreakEnd:   breakEnd,
		Year:                      year,
	}
}

// For returns the academic year d belongs to: the latest one whose first
// semester has started on or before d.
func For(d time.Time) AcademicYear {
	d = date.Truncate(d)
	ay := New(d.Year())
	if d.Before(ay.FirstSemester.Start) {
		return New(d.Year() - 1)
	}
	return ay
}

// PeriodID returns the stable identifier of a period, e.g. "exam-2025".
func PeriodID(k PeriodKind, year int) string {
	return fmt.Sprintf("%s-%d", k, year)
}
