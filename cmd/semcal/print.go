package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"semcal/internal/academic"
	"semcal/internal/date"
	"semcal/internal/model"
	"semcal/internal/view"
)

// printCalendar writes a plain-text overview of ay as seen on today, plus
// the tasks of today's week.
func printCalendar(w io.Writer, ay academic.AcademicYear, today time.Time, week []model.Task) {
	fmt.Fprintf(w, "Academic year %d/%d\n", ay.Year, ay.Year+1)
	for _, p := range ay.Periods() {
		fmt.Fprintf(w, "  %-22s %s .. %s  %d %s", p.Name, date.Format(p.Start), date.Format(p.End), p.WeekCount, plural(p.WeekCount, "week"))
		if p.HasRecess() {
			fmt.Fprintf(w, ", recess %s .. %s", date.Format(p.BreakStart), date.Format(p.BreakEnd))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\nToday is %s: ", date.Format(today))
	if info, ok := academic.WeekNumberForDate(today, ay); ok && info.Week > 0 {
		fmt.Fprintf(w, "%s week of the %s\n", humanize.Ordinal(info.Week), info.Period)
	} else if ok {
		fmt.Fprintf(w, "%s\n", info.Period)
	} else {
		fmt.Fprintln(w, "outside the academic year")
	}

	for _, p := range ay.Periods() {
		if p.Start.After(today) {
			fmt.Fprintf(w, "Next: %s starts %s (%s)\n", p.Name, date.Format(p.Start), humanize.RelTime(p.Start, today, "ago", "from now"))
			break
		}
	}

	st := view.Summarize(week)
	fmt.Fprintf(w, "\nWeek %s .. %s: %d %s, %d completed (%d%%)\n",
		date.Format(date.StartOfWeek(today)), date.Format(date.EndOfWeek(today)),
		st.Total, plural(st.Total, "task"), st.Completed, st.CompletionRate)
	for _, t := range week {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		when := t.Date
		if t.StartTime != "" {
			when += " " + t.StartTime
		}
		fmt.Fprintf(w, "  [%s] %-16s %s (%s)\n", mark, when, t.Title, t.Type)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
