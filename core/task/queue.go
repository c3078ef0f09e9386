// Package task is a durable background task queue backed by the database.
// Settlement enqueues follow-up work (license issuance, notifications,
// compensation reviews) after its transaction commits; the worker delivers
// each task at least once, so handlers must be idempotent.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Task states.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

const maxAttempts = 5

// Task is one unit of deferred work.
type Task struct {
	ID        int64  `gorm:"primaryKey"`
	Kind      string `gorm:"size:50;index"`
	Payload   string `gorm:"type:text"`
	Status    string `gorm:"size:20;index;default:'pending'"`
	Attempts  int
	LastError string    `gorm:"type:text"`
	NextRunAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Task) TableName() string {
	return "tasks"
}

// Queue enqueues tasks into the database.
type Queue struct {
	db *gorm.DB
}

// NewQueue creates a Queue.
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue persists a task for the worker to pick up. The payload is stored
// as JSON.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for task %s: %w", kind, err)
	}

	task := &Task{
		Kind:      kind,
		Payload:   string(data),
		Status:    StatusPending,
		NextRunAt: time.Now(),
	}
	if err := q.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", kind, err)
	}
	return nil
}
