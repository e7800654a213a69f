package model

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"semcal/internal/date"
)

// ErrInvalidTask wraps every validation failure reported by Validate.
var ErrInvalidTask = errors.New("invalid task")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			_, err := date.Parse(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := time.Parse("15:04", fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Validate checks field formats and the cross-field rules of a task.
func (t Task) Validate() error {
	if err := validatorInstance().Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidTask, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	if t.StartTime != "" && t.EndTime != "" && t.EndTime < t.StartTime {
		return fmt.Errorf("%w: end time %s before start time %s", ErrInvalidTask, t.EndTime, t.StartTime)
	}
	if t.StartDate != "" && t.EndDate != "" && t.EndDate < t.StartDate {
		return fmt.Errorf("%w: end date %s before start date %s", ErrInvalidTask, t.EndDate, t.StartDate)
	}
	if t.Type != TypeExam && (t.ExamResult != nil || t.Credits != nil) {
		return fmt.Errorf("%w: exam result and credits only apply to exams", ErrInvalidTask)
	}
	return nil
}
