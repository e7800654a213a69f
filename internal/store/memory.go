package store

import (
	"context"
	"sort"
	"sync"

	"semcal/internal/model"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store, used for development and tests.
type Memory struct {
	mu    sync.RWMutex
	users map[string]map[string]model.Task
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]map[string]model.Task)}
}

func (m *Memory) FetchAll(ctx context.Context, sess Session) ([]model.Task, error) {
	if !sess.Valid() {
		return nil, ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Task, 0, len(m.users[sess.UserID]))
	for _, t := range m.users[sess.UserID] {
		out = append(out, t.Clone())
	}
	sortByDate(out)
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, sess Session, tasks []model.Task) error {
	if !sess.Valid() {
		return ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.users[sess.UserID]
	if !ok {
		rows = make(map[string]model.Task)
		m.users[sess.UserID] = rows
	}
	for _, t := range tasks {
		rows[t.ID] = t.Clone()
	}
	return nil
}

func (m *Memory) DeleteByIDs(ctx context.Context, sess Session, ids []string) error {
	if !sess.Valid() {
		return ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.users[sess.UserID], id)
	}
	return nil
}

// sortByDate orders records by date, then id, so reads are stable.
func sortByDate(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Date != tasks[j].Date {
			return tasks[i].Date < tasks[j].Date
		}
		return tasks[i].ID < tasks[j].ID
	})
}
