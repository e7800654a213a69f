package view

import "semcal/internal/model"

// Stats summarises a list of task occurrences.
type Stats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	Courses        int `json:"courses"`
	Exams          int `json:"exams"`
	Personal       int `json:"personal"`
	CompletionRate int `json:"completionRate"` // percent, rounded
}

// Summarize counts tasks by state and type.
func Summarize(tasks []model.Task) Stats {
	var s Stats
	for _, t := range tasks {
		s.Total++
		if t.Completed {
			s.Completed++
		}
		switch t.Type {
		case model.TypeCourse:
			s.Courses++
		case model.TypeExam:
			s.Exams++
		case model.TypePersonal:
			s.Personal++
		}
	}
	s.Pending = s.Total - s.Completed
	if s.Total > 0 {
		s.CompletionRate = (s.Completed*100 + s.Total/2) / s.Total
	}
	return s
}
