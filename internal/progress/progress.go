// Package progress tracks the state of background ingestion tasks.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
	StatusUnknown    Status = "unknown"
)

const (
	startMessage    = "Processing"
	doneMessage     = "Upload and vector storage complete"
	unknownMessage  = "No progress information"
	completePercent = 100
)

// ErrTaskFinished is returned when a terminal task is updated.
var ErrTaskFinished = errors.New("task already finished")

// State is a snapshot of one task.
type State struct {
	TaskID    string    `json:"task_id"`
	Progress  int       `json:"progress"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s.Status == StatusDone || s.Status == StatusError
}

// Store persists task states. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, state State) error
	// Get returns the state for taskID and false when it is unknown or expired.
	Get(ctx context.Context, taskID string) (State, bool, error)
}

// Tracker applies the task state machine on top of a Store:
// processing -> processing | done | error, with done and error terminal.
// Each task has a single writer, so read-modify-write needs no extra locking.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker over store. A nil logger uses slog.Default().
func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers taskID as processing at 0%.
func (t *Tracker) Start(ctx context.Context, taskID string) error {
	return t.store.Put(ctx, State{
		TaskID:    taskID,
		Status:    StatusProcessing,
		Message:   startMessage,
		UpdatedAt: t.now(),
	})
}

// SetProgress records progress for taskID, clamped to 0..100. A value of 100
// or more marks the task done. An empty message keeps the previous one.
// Callers are expected to report increasing values; this is not enforced.
func (t *Tracker) SetProgress(ctx context.Context, taskID string, value int, message string) error {
	state, err := t.current(ctx, taskID)
	if err != nil {
		return err
	}

	state.Progress = max(0, min(value, completePercent))
	if message != "" {
		state.Message = message
	}
	if value >= completePercent {
		state.Status = StatusDone
		state.Message = doneMessage
	}
	state.UpdatedAt = t.now()

	t.logger.Debug("task progress", "task_id", taskID, "progress", state.Progress, "status", state.Status)
	return t.store.Put(ctx, state)
}

// SetError moves taskID to the terminal error state and resets progress to 0.
func (t *Tracker) SetError(ctx context.Context, taskID string, message string) error {
	state, err := t.current(ctx, taskID)
	if err != nil {
		return err
	}

	state.Status = StatusError
	state.Progress = 0
	state.Message = message
	state.UpdatedAt = t.now()

	t.logger.Warn("task failed", "task_id", taskID, "message", message)
	return t.store.Put(ctx, state)
}

// current loads the state to update. Unknown tasks start out processing.
func (t *Tracker) current(ctx context.Context, taskID string) (State, error) {
	state, ok, err := t.store.Get(ctx, taskID)
	if err != nil {
		return State{}, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if !ok {
		return State{TaskID: taskID, Status: StatusProcessing, Message: startMessage}, nil
	}
	if state.Terminal() {
		return State{}, fmt.Errorf("%w: %s is %s", ErrTaskFinished, taskID, state.Status)
	}
	return state, nil
}

// Status returns the state of taskID. Unknown ids yield StatusUnknown, not an error.
func (t *Tracker) Status(ctx context.Context, taskID string) (State, error) {
	state, ok, err := t.store.Get(ctx, taskID)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return State{
			TaskID:  taskID,
			Status:  StatusUnknown,
			Message: unknownMessage,
		}, nil
	}
	return state, nil
}

// Task returns a handle bound to taskID.
func (t *Tracker) Task(taskID string) *Task {
	return &Task{tracker: t, id: taskID}
}

// Task reports progress for one task.
type Task struct {
	tracker *Tracker
	id      string
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

func (t *Task) SetProgress(ctx context.Context, value int, message string) error {
	return t.tracker.SetProgress(ctx, t.id, value, message)
}

func (t *Task) SetError(ctx context.Context, message string) error {
	return t.tracker.SetError(ctx, t.id, message)
}
