package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"semcal/internal/date"
	appLog "semcal/internal/log"
	"semcal/internal/model"
	"semcal/internal/recur"
	"semcal/internal/store"
	"semcal/internal/view"
)

var (
	// ErrNotFound is returned for ids that are neither stored nor generated
	// by a stored template.
	ErrNotFound = errors.New("task not found")
	// ErrReadOnly is returned when editing a task imported from a feed.
	ErrReadOnly = errors.New("task is read-only")
)

// Service applies user edits to a user's task records. Each operation
// mutates an in-memory working copy, persists only the changed records and
// restores the previous copy if the store fails.
type Service struct {
	store store.Store
	newID func() string

	mu      sync.Mutex
	working map[string][]model.Task
}

func NewService(st store.Store) *Service {
	return &Service{
		store:   st,
		newID:   uuid.NewString,
		working: make(map[string][]model.Task),
	}
}

// Load replaces the working copy with the stored records. Records written
// before occurrences carried a template id are linked to their template.
func (s *Service) Load(ctx context.Context, sess store.Session) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, sess)
}

func (s *Service) load(ctx context.Context, sess store.Session) ([]model.Task, error) {
	fetched, err := s.store.FetchAll(ctx, sess)
	if err != nil {
		return nil, err
	}
	tasks := model.UpgradeLegacy(fetched)
	s.working[sess.UserID] = tasks
	appLog.Debug("tasks loaded", "user", sess.UserID, "count", len(tasks))
	return model.CloneAll(tasks), nil
}

func (s *Service) current(ctx context.Context, sess store.Session) ([]model.Task, error) {
	if tasks, ok := s.working[sess.UserID]; ok {
		return tasks, nil
	}
	if _, err := s.load(ctx, sess); err != nil {
		return nil, err
	}
	return s.working[sess.UserID], nil
}

// Tasks returns the working copy, loading it on first use.
func (s *Service) Tasks(ctx context.Context, sess store.Session) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.current(ctx, sess)
	if err != nil {
		return nil, err
	}
	return model.CloneAll(tasks), nil
}

// View returns the occurrences of the user's tasks within [start, end],
// followed by extra read-only tasks (e.g. imported feeds) in range.
func (s *Service) View(ctx context.Context, sess store.Session, start, end time.Time, extra ...model.Task) ([]model.Task, error) {
	tasks, err := s.Tasks(ctx, sess)
	if err != nil {
		return nil, err
	}
	return view.ForRange(append(tasks, extra...), start, end)
}

// Create stores a new task under a fresh id. A draft with a semester and a
// date range becomes a template; its occurrences are generated on read.
func (s *Service) Create(ctx context.Context, sess store.Session, draft model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.current(ctx, sess)
	if err != nil {
		return model.Task{}, err
	}

	t := draft.Clone()
	t.ID = s.newID()
	t.TemplateID, t.OccurrenceDate, t.Skipped, t.ReadOnly = "", "", false, false
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}

	next := append(model.CloneAll(tasks), t)
	if err := s.commit(ctx, sess, tasks, next, []model.Task{t}, nil); err != nil {
		return model.Task{}, err
	}
	appLog.Info("task created", "user", sess.UserID, "id", t.ID, "kind", t.Kind())
	return t, nil
}

// Update replaces the task with id by draft.
//
//   - Editing a template replaces it and drops the stored edits of its
//     occurrences, so every occurrence is regenerated from the new template.
//   - Editing an occurrence stores that occurrence only; later template
//     expansions keep the edit.
//   - Anything else is replaced in place.
func (s *Service) Update(ctx context.Context, sess store.Session, id string, draft model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.current(ctx, sess)
	if err != nil {
		return model.Task{}, err
	}
	target, stored, err := resolve(tasks, id)
	if err != nil {
		return model.Task{}, err
	}
	if target.ReadOnly {
		return model.Task{}, ErrReadOnly
	}

	t := draft.Clone()
	t.ID = target.ID
	t.ReadOnly = false

	var deletes []string
	next := model.CloneAll(tasks)

	switch target.Kind() {
	case model.KindTemplate:
		t.TemplateID, t.OccurrenceDate, t.Skipped = "", "", false
		if t.Kind() == model.KindTemplate {
			next, deletes = dropInstances(next, target.ID)
		}
	case model.KindInstance:
		t.TemplateID = target.TemplateID
		t.OccurrenceDate = target.SlotDate()
		t.Skipped = false
	default:
		t.TemplateID, t.OccurrenceDate, t.Skipped = "", "", false
	}
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	next = put(next, t)

	if err := s.commit(ctx, sess, tasks, next, []model.Task{t}, deletes); err != nil {
		return model.Task{}, err
	}
	appLog.Info("task updated", "user", sess.UserID, "id", t.ID, "kind", target.Kind(), "stored", stored, "dropped_edits", len(deletes))
	return t, nil
}

// Delete removes the task with id. Deleting a template also removes the
// stored edits of its occurrences. Deleting an occurrence of a template
// records it as skipped so it is not generated again.
func (s *Service) Delete(ctx context.Context, sess store.Session, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.current(ctx, sess)
	if err != nil {
		return err
	}
	target, _, err := resolve(tasks, id)
	if err != nil {
		return err
	}
	if target.ReadOnly {
		return ErrReadOnly
	}

	next := model.CloneAll(tasks)
	var upserts []model.Task
	var deletes []string

	switch {
	case target.Kind() == model.KindTemplate:
		next, deletes = dropInstances(next, target.ID)
		next = remove(next, target.ID)
		deletes = append([]string{target.ID}, deletes...)
	case target.Kind() == model.KindInstance && hasTemplate(tasks, target.TemplateID):
		skip := target.Clone()
		skip.Skipped = true
		skip.OccurrenceDate = target.SlotDate()
		next = put(next, skip)
		upserts = []model.Task{skip}
	default:
		next = remove(next, target.ID)
		deletes = []string{target.ID}
	}

	if err := s.commit(ctx, sess, tasks, next, upserts, deletes); err != nil {
		return err
	}
	appLog.Info("task deleted", "user", sess.UserID, "id", id, "removed", len(deletes), "skipped", len(upserts))
	return nil
}

// ToggleComplete flips the completed flag of one occurrence or task.
func (s *Service) ToggleComplete(ctx context.Context, sess store.Session, id string) (model.Task, error) {
	return s.patch(ctx, sess, id, func(t *model.Task) {
		t.Completed = !t.Completed
	})
}

// UpdateNotes sets the notes of one occurrence or task. Blank notes clear it.
func (s *Service) UpdateNotes(ctx context.Context, sess store.Session, id, notes string) (model.Task, error) {
	return s.patch(ctx, sess, id, func(t *model.Task) {
		t.Notes = strings.TrimSpace(notes)
	})
}

func (s *Service) patch(ctx context.Context, sess store.Session, id string, fn func(*model.Task)) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.current(ctx, sess)
	if err != nil {
		return model.Task{}, err
	}
	target, _, err := resolve(tasks, id)
	if err != nil {
		return model.Task{}, err
	}
	if target.ReadOnly {
		return model.Task{}, ErrReadOnly
	}

	t := target.Clone()
	fn(&t)
	next := put(model.CloneAll(tasks), t)
	if err := s.commit(ctx, sess, tasks, next, []model.Task{t}, nil); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// commit persists the delta and installs next as the working copy. On a
// store error prev stays in place.
func (s *Service) commit(ctx context.Context, sess store.Session, prev, next, upserts []model.Task, deletes []string) error {
	if len(deletes) > 0 {
		if err := s.store.DeleteByIDs(ctx, sess, deletes); err != nil {
			s.working[sess.UserID] = prev
			appLog.Error("task delete failed; keeping previous state", err, "user", sess.UserID, "ids", len(deletes))
			return fmt.Errorf("delete tasks: %w", err)
		}
	}
	if len(upserts) > 0 {
		if err := s.store.Upsert(ctx, sess, upserts); err != nil {
			s.working[sess.UserID] = prev
			appLog.Error("task save failed; keeping previous state", err, "user", sess.UserID, "ids", len(upserts))
			return fmt.Errorf("save tasks: %w", err)
		}
	}
	s.working[sess.UserID] = next
	return nil
}

// resolve finds id among stored records, or among the occurrences generated
// by stored templates. stored reports which of the two matched.
func resolve(tasks []model.Task, id string) (t model.Task, stored bool, err error) {
	if i := model.IndexOf(tasks, id); i >= 0 {
		return tasks[i].Clone(), true, nil
	}
	for _, tpl := range tasks {
		if tpl.Kind() != model.KindTemplate || !strings.HasPrefix(id, tpl.ID+"-") {
			continue
		}
		day, err := date.Parse(strings.TrimPrefix(id, tpl.ID+"-"))
		if err != nil {
			continue
		}
		occs, err := recur.Expand(tpl)
		if err != nil {
			return model.Task{}, false, err
		}
		for _, occ := range occs {
			if occ.ID == model.OccurrenceID(tpl.ID, date.Format(day)) {
				return occ, false, nil
			}
		}
	}
	return model.Task{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func hasTemplate(tasks []model.Task, id string) bool {
	i := model.IndexOf(tasks, id)
	return i >= 0 && tasks[i].Kind() == model.KindTemplate
}

func dropInstances(tasks []model.Task, templateID string) ([]model.Task, []string) {
	kept := tasks[:0]
	var dropped []string
	for _, t := range tasks {
		if t.TemplateID == templateID {
			dropped = append(dropped, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	return kept, dropped
}

func put(tasks []model.Task, t model.Task) []model.Task {
	if i := model.IndexOf(tasks, t.ID); i >= 0 {
		tasks[i] = t
		return tasks
	}
	return append(tasks, t)
}

func remove(tasks []model.Task, id string) []model.Task {
	if i := model.IndexOf(tasks, id); i >= 0 {
		return append(tasks[:i], tasks[i+1:]...)
	}
	return tasks
}
