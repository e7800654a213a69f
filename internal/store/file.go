package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"semcal/internal/model"
)

var _ Store = (*File)(nil)

// fileData is the on-disk layout: task records per user id.
type fileData struct {
	Users map[string][]model.Task `yaml:"users"`
}

// File is a Store backed by a single YAML document. Every write rewrites
// the whole file through a temp file + rename.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a File store at path. The file is created on first write.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("store: file path is empty")
	}
	return &File{path: path}, nil
}

func (f *File) FetchAll(ctx context.Context, sess Session) ([]model.Task, error) {
	if !sess.Valid() {
		return nil, ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return nil, err
	}
	out := model.CloneAll(data.Users[sess.UserID])
	if out == nil {
		out = []model.Task{}
	}
	sortByDate(out)
	return out, nil
}

func (f *File) Upsert(ctx context.Context, sess Session, tasks []model.Task) error {
	if !sess.Valid() {
		return ErrNoSession
	}
	if len(tasks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	rows := data.Users[sess.UserID]
	for _, t := range tasks {
		if i := model.IndexOf(rows, t.ID); i >= 0 {
			rows[i] = t.Clone()
		} else {
			rows = append(rows, t.Clone())
		}
	}
	data.Users[sess.UserID] = rows
	return f.save(data)
}

func (f *File) DeleteByIDs(ctx context.Context, sess Session, ids []string) error {
	if !sess.Valid() {
		return ErrNoSession
	}
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := data.Users[sess.UserID][:0]
	for _, t := range data.Users[sess.UserID] {
		if _, ok := drop[t.ID]; !ok {
			kept = append(kept, t)
		}
	}
	data.Users[sess.UserID] = kept
	return f.save(data)
}

func (f *File) load() (fileData, error) {
	data := fileData{Users: map[string][]model.Task{}}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return data, nil
		}
		return data, fmt.Errorf("store: read %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("store: decode %s: %w", f.path, err)
	}
	if data.Users == nil {
		data.Users = map[string][]model.Task{}
	}
	return data, nil
}

// save writes data atomically with 0600 permissions.
func (f *File) save(data fileData) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	raw, err := yaml.Marshal(&data)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".semcal-tasks-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}
