package exams

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"semcal/internal/academic"
	"semcal/internal/model"
)

const (
	// UnknownSession groups exams without an exam session id.
	UnknownSession = "unknown"
	// TargetCredits is the number of credits a full session is worth.
	TargetCredits = 30
)

var sessionYear = regexp.MustCompile(`^exam-(\d{4})`)

// Session holds the graded exams of one exam session.
type Session struct {
	ID           string       `json:"sessionId"`
	Name         string       `json:"sessionName"`
	Year         int          `json:"year"`
	Exams        []model.Task `json:"exams"`
	TotalCredits float64      `json:"totalCredits"`
	// Average is the credit-weighted mean result, nil when no credits count.
	Average *float64 `json:"average"`
}

// Summary is what an exam results panel shows for a reference date.
type Summary struct {
	// Current is true when ref falls in the exam session and Sessions only
	// holds that session.
	Current  bool      `json:"current"`
	Sessions []Session `json:"sessions"`
	// All is the full history, newest first.
	All []Session `json:"-"`
}

// Aggregate groups graded exams by session and computes their weighted
// averages. ay identifies the session that is current; ref is the date the
// panel is shown for.
func Aggregate(tasks []model.Task, ay academic.AcademicYear, ref time.Time) Summary {
	sessions := Group(tasks, ay, ref.Year())

	if academic.Classify(ref, ay) == academic.KindExam {
		for _, s := range sessions {
			if s.ID == ay.ExamSession.ID {
				return Summary{Current: true, Sessions: []Session{s}, All: sessions}
			}
		}
	}
	return Summary{Sessions: sessions, All: sessions}
}

// Group collects exams that carry both a result and credits into sessions,
// sorted by year, newest first. Sessions whose year cannot be derived use
// fallbackYear.
func Group(tasks []model.Task, ay academic.AcademicYear, fallbackYear int) []Session {
	index := make(map[string]int)
	var sessions []Session

	for _, t := range tasks {
		if t.Type != model.TypeExam || t.ExamResult == nil || t.Credits == nil {
			continue
		}
		id := t.ExamSessionID
		if id == "" {
			id = UnknownSession
		}
		i, ok := index[id]
		if !ok {
			i = len(sessions)
			index[id] = i
			name, year := label(id, ay, fallbackYear)
			sessions = append(sessions, Session{ID: id, Name: name, Year: year})
		}
		sessions[i].Exams = append(sessions[i].Exams, t)
	}

	for i := range sessions {
		sessions[i].TotalCredits, sessions[i].Average = weightedAverage(sessions[i].Exams)
	}

	sort.SliceStable(sessions, func(a, b int) bool {
		return sessions[a].Year > sessions[b].Year
	})
	return sessions
}

func label(id string, ay academic.AcademicYear, fallbackYear int) (string, int) {
	if id == ay.ExamSession.ID {
		return ay.ExamSession.Name + " " + strconv.Itoa(ay.ExamSession.Year), ay.ExamSession.Year
	}
	if m := sessionYear.FindStringSubmatch(id); m != nil {
		year, _ := strconv.Atoi(m[1])
		return academic.ExamSessionName + " " + m[1], year
	}
	return academic.ExamSessionName, fallbackYear
}

func weightedAverage(exams []model.Task) (float64, *float64) {
	var sum, credits float64
	for _, e := range exams {
		sum += *e.ExamResult * *e.Credits
		credits += *e.Credits
	}
	if credits == 0 {
		return 0, nil
	}
	avg := sum / credits
	return credits, &avg
}
