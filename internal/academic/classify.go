package academic

import (
	"strconv"
	"time"

	"semcal/internal/date"
)

// PeriodKind classifies a date within an academic year.
type PeriodKind string

const (
	KindNone   PeriodKind = "none"
	KindFirst  PeriodKind = "first"
	KindExam   PeriodKind = "exam"
	KindBreak  PeriodKind = "break"
	KindSecond PeriodKind = "second"
)

// BreakLabel is the period label reported for recess and break dates.
const BreakLabel = "Break"

// Classify returns which period d falls in. The winter recess is checked
// before the first semester, so a date on a recess boundary is KindBreak.
// Dates outside every period yield KindNone.
func Classify(d time.Time, ay AcademicYear) PeriodKind {
	d = date.Truncate(d)
	first := ay.FirstSemester

	switch {
	case date.Within(d, first.BreakStart, first.BreakEnd):
		return KindBreak
	case (!d.Before(first.Start) && d.Before(first.BreakStart)) ||
		(d.After(first.BreakEnd) && !d.After(first.End)):
		return KindFirst
	case ay.ExamSession.Contains(d):
		return KindExam
	case date.Within(d, ay.IntersemestrialBreakStart, ay.IntersemestrialBreakEnd):
		return KindBreak
	case ay.SecondSemester.Contains(d):
		return KindSecond
	}
	return KindNone
}

// WeekNumberInPeriod returns the 1-based week of d counted from periodStart,
// or 0 when d's week is before the period or inside the winter recess.
//
// When ay is non-nil and periodStart is the first semester's start, recess
// weeks are skipped: weeks before the recess are 1..K and the week classes
// resume in is K+1. Exam session weeks are capped at ExamWeeks and semester
// weeks at SemesterWeeks.
func WeekNumberInPeriod(d, periodStart time.Time, ay *AcademicYear) int {
	dateWeek := date.StartOfWeek(date.Truncate(d))
	startWeek := date.StartOfWeek(date.Truncate(periodStart))
	if dateWeek.Before(startWeek) {
		return 0
	}

	if ay != nil && startWeek.Equal(date.StartOfWeek(ay.FirstSemester.Start)) && ay.FirstSemester.HasRecess() {
		return firstSemesterWeek(dateWeek, startWeek, ay.FirstSemester)
	}

	week := date.WeeksBetween(startWeek, dateWeek) + 1
	if ay != nil {
		switch {
		case startWeek.Equal(date.StartOfWeek(ay.SecondSemester.Start)):
			week = min(week, SemesterWeeks)
		case startWeek.Equal(date.StartOfWeek(ay.ExamSession.Start)):
			week = min(week, ExamWeeks)
		}
	}
	return week
}

func firstSemesterWeek(dateWeek, startWeek time.Time, first Period) int {
	recessWeek := date.StartOfWeek(first.BreakStart)
	recessLastWeek := date.StartOfWeek(first.BreakEnd)
	resumeWeek := date.StartOfWeek(date.AddDays(first.BreakEnd, 1))
	before := date.WeeksBetween(startWeek, recessWeek)

	switch {
	case !dateWeek.Before(recessWeek) && !dateWeek.After(recessLastWeek):
		return 0
	case !dateWeek.Before(resumeWeek):
		return min(before+date.WeeksBetween(resumeWeek, dateWeek)+1, SemesterWeeks)
	}

	week := date.WeeksBetween(startWeek, dateWeek) + 1
	if week < 1 {
		return 0
	}
	return min(week, before)
}

// WeekInfo is the user-facing period label and week number of a date.
type WeekInfo struct {
	Period string     `json:"period"`
	Kind   PeriodKind `json:"kind"`
	Week   int        `json:"week"`
}

// WeekNumberForDate resolves d to its period label and week. It reports false
// when d is outside the academic year or before its period's first week.
// Recess and break dates resolve to {Period: "Break", Week: 0}.
func WeekNumberForDate(d time.Time, ay AcademicYear) (WeekInfo, bool) {
	var p Period
	kind := Classify(d, ay)
	switch kind {
	case KindFirst:
		p = ay.FirstSemester
	case KindExam:
		p = ay.ExamSession
	case KindSecond:
		p = ay.SecondSemester
	case KindBreak:
		return WeekInfo{Period: BreakLabel, Kind: KindBreak}, true
	default:
		return WeekInfo{}, false
	}

	week := WeekNumberInPeriod(d, p.Start, &ay)
	if week == 0 {
		return WeekInfo{}, false
	}
	return WeekInfo{Period: p.Name, Kind: kind, Week: week}, true
}

// PeriodFor returns the period d falls in. Recess dates return the first
// semester's recess as a synthetic break period.
func PeriodFor(d time.Time, ay AcademicYear) (Period, bool) {
	d = date.Truncate(d)
	switch Classify(d, ay) {
	case KindFirst:
		return ay.FirstSemester, true
	case KindExam:
		return ay.ExamSession, true
	case KindSecond:
		return ay.SecondSemester, true
	case KindBreak:
		if ay.Break.Contains(d) {
			return ay.Break, true
		}
		return Period{
			ID:        "recess-" + strconv.Itoa(ay.Year),
			Name:      BreakLabel,
			Start:     ay.FirstSemester.BreakStart,
			End:       ay.FirstSemester.BreakEnd,
			WeekCount: date.WeeksBetween(ay.FirstSemester.BreakStart, ay.FirstSemester.BreakEnd) + 1,
			Year:      ay.Year,
		}, true
	}
	return Period{}, false
}
