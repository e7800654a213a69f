package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"semcal/internal/academic"
	"semcal/internal/date"
	"semcal/internal/exams"
	"semcal/internal/ics"
	appLog "semcal/internal/log"
	"semcal/internal/model"
	"semcal/internal/view"
)

const maxBodyBytes = 1 << 20

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", s.handleHealth)
	r.GET("/api/academic-year", s.handleAcademicYear)
	r.GET("/api/week", s.handleWeek)
	r.GET("/api/tasks", s.handleListTasks)
	r.POST("/api/tasks", s.handleCreateTask)
	r.PUT("/api/tasks/:id", s.handleUpdateTask)
	r.DELETE("/api/tasks/:id", s.handleDeleteTask)
	r.POST("/api/tasks/:id/toggle", s.handleToggleTask)
	r.PUT("/api/tasks/:id/notes", s.handleTaskNotes)
	r.GET("/api/exams", s.handleExams)
	r.GET("/api/stats", s.handleStats)
	r.GET("/calendar.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// academicYear resolves the year to use for d: the pinned year from config
// if any, else the year d falls in.
func (s *Server) academicYear(d time.Time) academic.AcademicYear {
	if s.cfg.AcademicYear > 0 {
		return academic.New(s.cfg.AcademicYear)
	}
	return academic.For(d)
}

// GET /api/academic-year?year=2025
func (s *Server) handleAcademicYear(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1 || year > 9998 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid year %q", raw))
			return
		}
		writeJSON(w, http.StatusOK, academic.New(year))
		return
	}
	writeJSON(w, http.StatusOK, s.academicYear(s.today()))
}

type weekResponse struct {
	WeekStart string             `json:"weekStart"`
	WeekEnd   string             `json:"weekEnd"`
	Period    *academic.Period   `json:"period"`
	Info      *academic.WeekInfo `json:"info"`
	Tasks     []model.Task       `json:"tasks"`
	Stats     view.Stats         `json:"stats"`
}

// GET /api/week?date=2025-10-08
//
// The Monday-to-Sunday week around date (default today), its academic
// period and week number, and its tasks.
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	day, err := s.dateParam(r, "date", s.today())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, end := date.StartOfWeek(day), date.EndOfWeek(day)

	list, err := s.viewRange(r, start, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := weekResponse{
		WeekStart: date.Format(start),
		WeekEnd:   date.Format(end),
		Tasks:     list,
		Stats:     view.Summarize(list),
	}
	ay := s.academicYear(day)
	if p, ok := academic.PeriodFor(day, ay); ok {
		resp.Period = &p
	}
	if info, ok := academic.WeekNumberForDate(day, ay); ok {
		resp.Info = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/tasks?start=&end=
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start, end, err := s.rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.viewRange(r, start, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/tasks
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var draft model.Task
	if err := decodeBody(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.tasks.Create(r.Context(), s.session(r), draft)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// PUT /api/tasks/:id
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var draft model.Task
	if err := decodeBody(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.tasks.Update(r.Context(), s.session(r), ps.ByName("id"), draft)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DELETE /api/tasks/:id
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.tasks.Delete(r.Context(), s.session(r), ps.ByName("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/tasks/:id/toggle
func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	t, err := s.tasks.ToggleComplete(r.Context(), s.session(r), ps.ByName("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// PUT /api/tasks/:id/notes  {"notes": "..."}
func (s *Server) handleTaskNotes(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.tasks.UpdateNotes(r.Context(), s.session(r), ps.ByName("id"), body.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GET /api/exams?date=
//
// Graded exams grouped by session. During an exam session only the current
// session is listed when it has results.
func (s *Server) handleExams(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ref, err := s.dateParam(r, "date", s.today())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	all, err := s.tasks.Tasks(r.Context(), s.session(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exams.Aggregate(all, s.academicYear(ref), ref))
}

// GET /api/stats?start=&end=
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start, end, err := s.rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.viewRange(r, start, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Summarize(list))
}

// GET /calendar.ics?start=&end=
//
// The user's tasks as iCalendar. Defaults to the whole academic year.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ay := s.academicYear(s.today())
	start, err := s.dateParam(r, "start", ay.FirstSemester.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := s.dateParam(r, "end", ay.SecondSemester.End)
	if err == nil && end.Before(start) {
		err = fmt.Errorf("end %s before start %s", date.Format(end), date.Format(start))
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.tasks.View(r.Context(), s.session(r), start, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = ics.Export(&buf, list, ics.ExportConfig{Name: s.cfg.Export.Name, Location: s.loc, Now: s.now()})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", ics.ExportFileBase(s.cfg.Export.Name)+".ics"))
	_, _ = w.Write(buf.Bytes())
}

// viewRange returns the user's occurrences in range plus the feed tasks.
func (s *Server) viewRange(r *http.Request, start, end time.Time) ([]model.Task, error) {
	extra, err := s.feeds.Tasks(start, end)
	if err != nil {
		// Feeds are best effort; the user's own tasks still show.
		appLog.Warn("feed tasks unavailable", "err", err)
		extra = nil
	}
	list, err := s.tasks.View(r.Context(), s.session(r), start, end, extra...)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Task{}
	}
	return list, nil
}

// rangeParams reads start/end, defaulting to the current week.
func (s *Server) rangeParams(r *http.Request) (time.Time, time.Time, error) {
	today := s.today()
	start, err := s.dateParam(r, "start", date.StartOfWeek(today))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := s.dateParam(r, "end", date.EndOfWeek(start))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s before start %s", date.Format(end), date.Format(start))
	}
	return start, end, nil
}

func (s *Server) dateParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	d, err := date.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
