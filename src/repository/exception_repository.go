package repository

import (
	"context"
	"fmt"

	"papertrader/src/database"
	"papertrader/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExceptionRepository handles persistence of system exceptions.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Error("Persisting system exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// PanicRecorder returns a handler for recovered loop panics that stores them as exceptions.
// The handler matches executors.PanicHandler.
func (r *ExceptionRepository) PanicRecorder(service, module string) func(task string, recovered interface{}, stack []byte) {
	return func(task string, recovered interface{}, stack []byte) {
		exc := &model.Exception{
			Service: service,
			Module:  module,
			Method:  task,
			Message: fmt.Sprintf("%v", recovered),
			Stack:   string(stack),
			Level:   "error",
		}
		if err := r.Create(context.Background(), exc); err != nil {
			logger.WithError(err).WithField("task", task).Error("failed to persist panic")
		}
	}
}

// Recent returns the latest exceptions, newest first.
func (r *ExceptionRepository) Recent(ctx context.Context, limit int) ([]model.Exception, error) {
	var out []model.Exception
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
