package task

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jamesdoliver/featune-sub001/logger"
)

// Handler processes one task payload (raw JSON).
type Handler func(ctx context.Context, payload []byte) error

// Worker polls the task table and runs registered handlers. Delivery is at
// least once: a crash between handler success and the status update means
// the task runs again.
type Worker struct {
	db       *gorm.DB
	handlers map[string]Handler
	interval time.Duration
}

// NewWorker creates a Worker polling at the given interval.
func NewWorker(db *gorm.DB, interval time.Duration) *Worker {
	return &Worker{
		db:       db,
		handlers: make(map[string]Handler),
		interval: interval,
	}
}

// Register binds a handler to a task kind. Not safe to call after Run has
// started.
func (w *Worker) Register(kind string, handler Handler) {
	w.handlers[kind] = handler
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger.Info("Task worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Task worker stopped")
			return
		case <-ticker.C:
			for w.runOne(ctx) {
			}
		}
	}
}

// runOne claims and executes one due task. Returns false when no task was
// available.
func (w *Worker) runOne(ctx context.Context) bool {
	task, ok := w.claim(ctx)
	if !ok {
		return false
	}

	handler, registered := w.handlers[task.Kind]
	if !registered {
		logger.Warn("No handler registered for task kind", logger.String("kind", task.Kind))
		w.finish(ctx, task, StatusFailed, "no handler registered")
		return true
	}

	if err := handler(ctx, []byte(task.Payload)); err != nil {
		logger.Error("Task handler failed",
			logger.String("kind", task.Kind),
			logger.Int64("taskID", task.ID),
			logger.Int("attempts", task.Attempts),
			logger.ErrorField(err))
		w.retryOrFail(ctx, task, err)
		return true
	}

	w.finish(ctx, task, StatusDone, "")
	return true
}

// claim flips one due pending task to running. The conditional update plus
// the affected-rows check means two workers can never claim the same task.
func (w *Worker) claim(ctx context.Context) (*Task, bool) {
	var task Task
	err := w.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", StatusPending, time.Now()).
		Order("next_run_at").
		First(&task).Error
	if err != nil {
		return nil, false
	}

	res := w.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ?", task.ID, StatusPending).
		Updates(map[string]interface{}{
			"status":   StatusRunning,
			"attempts": task.Attempts + 1,
		})
	if res.Error != nil || res.RowsAffected != 1 {
		return nil, false
	}

	task.Status = StatusRunning
	task.Attempts++
	return &task, true
}

func (w *Worker) retryOrFail(ctx context.Context, task *Task, cause error) {
	if task.Attempts >= maxAttempts {
		w.finish(ctx, task, StatusFailed, cause.Error())
		return
	}

	// exponential backoff: 2s, 4s, 8s, ...
	delay := time.Duration(1<<uint(task.Attempts)) * time.Second
	err := w.db.WithContext(ctx).Model(&Task{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":      StatusPending,
			"last_error":  cause.Error(),
			"next_run_at": time.Now().Add(delay),
		}).Error
	if err != nil {
		logger.Error("Failed to reschedule task", logger.Int64("taskID", task.ID), logger.ErrorField(err))
	}
}

func (w *Worker) finish(ctx context.Context, task *Task, status, lastError string) {
	err := w.db.WithContext(ctx).Model(&Task{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
		}).Error
	if err != nil {
		logger.Error("Failed to finalize task", logger.Int64("taskID", task.ID), logger.ErrorField(err))
	}
}
