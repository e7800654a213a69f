package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"semcal/internal/model"
)

var _ Store = (*Postgres)(nil)

// taskRow is the tasks table layout (snake_case columns, nullable optionals).
type taskRow struct {
	ID             string   `gorm:"column:id;primaryKey"`
	UserID         string   `gorm:"column:user_id;not null;index"`
	Title          string   `gorm:"column:title;not null"`
	Description    *string  `gorm:"column:description"`
	Type           string   `gorm:"column:type;not null"`
	Date           string   `gorm:"column:date;type:date;not null;index"`
	Completed      bool     `gorm:"column:completed;not null;default:false"`
	Notes          *string  `gorm:"column:notes"`
	StartTime      *string  `gorm:"column:start_time"`
	EndTime        *string  `gorm:"column:end_time"`
	CourseName     *string  `gorm:"column:course_name"`
	ActivityType   *string  `gorm:"column:activity_type"`
	Frequency      *string  `gorm:"column:frequency"`
	SemesterID     *string  `gorm:"column:semester_id"`
	StartDate      *string  `gorm:"column:start_date;type:date"`
	EndDate        *string  `gorm:"column:end_date;type:date"`
	DayOfWeek      *int     `gorm:"column:day_of_week"`
	ExamType       *string  `gorm:"column:exam_type"`
	ExamSessionID  *string  `gorm:"column:exam_session_id"`
	ExamResult     *float64 `gorm:"column:exam_result"`
	Credits        *float64 `gorm:"column:credits"`
	TemplateID     *string  `gorm:"column:template_id;index"`
	OccurrenceDate *string  `gorm:"column:occurrence_date;type:date"`
	Skipped        bool     `gorm:"column:skipped;not null;default:false"`
}

func (taskRow) TableName() string { return "tasks" }

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	DSN string
	// AutoMigrate creates or updates the tasks table on open.
	AutoMigrate bool
	// QueryTimeout bounds each statement. Zero means 5s.
	QueryTimeout time.Duration
}

// Postgres is a Store backed by a PostgreSQL tasks table.
type Postgres struct {
	db      *gorm.DB
	timeout time.Duration
}

// OpenPostgres connects to PostgreSQL and optionally migrates the schema.
func OpenPostgres(cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store: postgres dsn is empty")
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&taskRow{}); err != nil {
			return nil, fmt.Errorf("store: migrate tasks: %w", err)
		}
	}
	return NewPostgres(db, cfg.QueryTimeout), nil
}

// NewPostgres wraps an open gorm handle.
func NewPostgres(db *gorm.DB, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Postgres{db: db, timeout: timeout}
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) FetchAll(ctx context.Context, sess Session) ([]model.Task, error) {
	if !sess.Valid() {
		return nil, ErrNoSession
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var rows []taskRow
	err := p.db.WithContext(ctx).
		Where("user_id = ?", sess.UserID).
		Order("date ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: fetch tasks: %w", err)
	}

	out := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToTask(r))
	}
	return out, nil
}

func (p *Postgres) Upsert(ctx context.Context, sess Session, tasks []model.Task) error {
	if !sess.Valid() {
		return ErrNoSession
	}
	if len(tasks) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows := make([]taskRow, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, taskToRow(t, sess.UserID))
	}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("store: upsert %d tasks: %w", len(rows), err)
	}
	return nil
}

func (p *Postgres) DeleteByIDs(ctx context.Context, sess Session, ids []string) error {
	if !sess.Valid() {
		return ErrNoSession
	}
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", sess.UserID, ids).
		Delete(&taskRow{}).Error
	if err != nil {
		return fmt.Errorf("store: delete %d tasks: %w", len(ids), err)
	}
	return nil
}

func rowToTask(r taskRow) model.Task {
	return model.Task{
		ID:             r.ID,
		Title:          r.Title,
		Description:    deref(r.Description),
		Type:           model.TaskType(r.Type),
		Date:           dateOnly(r.Date),
		Completed:      r.Completed,
		Notes:          deref(r.Notes),
		StartTime:      deref(r.StartTime),
		EndTime:        deref(r.EndTime),
		CourseName:     deref(r.CourseName),
		ActivityType:   model.ActivityType(deref(r.ActivityType)),
		Frequency:      model.Frequency(deref(r.Frequency)),
		SemesterID:     deref(r.SemesterID),
		StartDate:      dateOnly(deref(r.StartDate)),
		EndDate:        dateOnly(deref(r.EndDate)),
		DayOfWeek:      r.DayOfWeek,
		ExamType:       model.ExamType(deref(r.ExamType)),
		ExamSessionID:  deref(r.ExamSessionID),
		ExamResult:     r.ExamResult,
		Credits:        r.Credits,
		TemplateID:     deref(r.TemplateID),
		OccurrenceDate: dateOnly(deref(r.OccurrenceDate)),
		Skipped:        r.Skipped,
	}
}

func taskToRow(t model.Task, userID string) taskRow {
	t = t.Clone()
	return taskRow{
		ID:             t.ID,
		UserID:         userID,
		Title:          t.Title,
		Description:    nullable(t.Description),
		Type:           string(t.Type),
		Date:           t.Date,
		Completed:      t.Completed,
		Notes:          nullable(t.Notes),
		StartTime:      nullable(t.StartTime),
		EndTime:        nullable(t.EndTime),
		CourseName:     nullable(t.CourseName),
		ActivityType:   nullable(string(t.ActivityType)),
		Frequency:      nullable(string(t.Frequency)),
		SemesterID:     nullable(t.SemesterID),
		StartDate:      nullable(t.StartDate),
		EndDate:        nullable(t.EndDate),
		DayOfWeek:      t.DayOfWeek,
		ExamType:       nullable(string(t.ExamType)),
		ExamSessionID:  nullable(t.ExamSessionID),
		ExamResult:     t.ExamResult,
		Credits:        t.Credits,
		TemplateID:     nullable(t.TemplateID),
		OccurrenceDate: nullable(t.OccurrenceDate),
		Skipped:        t.Skipped,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// dateOnly trims the time part some drivers append to date columns.
func dateOnly(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
