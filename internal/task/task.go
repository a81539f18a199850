// Package task implements the task lifecycle manager: starting and
// stopping the single active task through the Idle -> Running ->
// Stopping -> Idle state machine, creating the task's on-disk
// directory and persisting its row.
package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/logger"
	"github.com/VK7KSM/ElfRadio/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorKind is the task-lifecycle error taxonomy.
type ErrorKind string

const (
	ErrAlreadyRunning ErrorKind = "TaskAlreadyRunning"
	ErrNotRunning     ErrorKind = "NoTaskRunning"
	ErrInvalidState   ErrorKind = "InvalidState"
)

// Error is the typed error Start/Stop can return.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Manager owns the task_root directory and coordinates lifecycle
// transitions against AppState, the relational store, and the
// log/status bus.
type Manager struct {
	state    *elfradio.AppState
	store    *store.Store
	bus      *bus.Bus
	taskRoot string
}

// NewManager builds a Manager. store may be nil (degraded mode: DB
// writes are skipped; a DB failure never fails a start).
func NewManager(state *elfradio.AppState, st *store.Store, b *bus.Bus, taskRoot string) *Manager {
	return &Manager{state: state, store: st, bus: b, taskRoot: taskRoot}
}

// Start implements start_task: generates a task id/name, creates
// task_dir, inserts the task row (best-effort), and transitions
// Idle -> Running.
func (m *Manager) Start(mode elfradio.TaskMode) (elfradio.TaskInfo, error) {
	m.state.TaskMu.Lock()
	defer m.state.TaskMu.Unlock()

	if m.state.Status != elfradio.TaskStatusIdle {
		return elfradio.TaskInfo{}, &Error{Kind: ErrAlreadyRunning}
	}

	id := uuid.NewString()
	taskName := fmt.Sprintf("%s_%s_%s", mode, time.Now().UTC().Format("2006-01-02_15-04-05Z"), strings.ReplaceAll(id, "-", ""))
	taskDir := filepath.Join(m.taskRoot, taskName)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return elfradio.TaskInfo{}, fmt.Errorf("create task dir: %w", err)
	}

	info := elfradio.TaskInfo{
		ID:           id,
		Name:         taskName,
		Mode:         mode,
		StartTime:    time.Now(),
		TaskDir:      taskDir,
		IsSimulation: mode == elfradio.TaskModeSimulatedQsoPractice,
	}

	if m.store != nil {
		if err := m.store.InsertTask(info); err != nil {
			logger.L().Warn("insert_task failed, continuing without a DB row", zap.Error(err), zap.String("task_id", info.ID))
		}
	}

	m.state.Active = &info
	m.state.Status = elfradio.TaskStatusRunning
	return info, nil
}

// Stop transitions Running -> Stopping -> Idle, updating
// tasks.end_time best-effort. Calling while Idle returns
// ErrNotRunning, which callers may treat as success.
func (m *Manager) Stop() error {
	m.state.TaskMu.Lock()
	defer m.state.TaskMu.Unlock()

	switch m.state.Status {
	case elfradio.TaskStatusIdle:
		return &Error{Kind: ErrNotRunning}
	case elfradio.TaskStatusRunning:
		if m.state.Active == nil {
			return &Error{Kind: ErrInvalidState, Err: fmt.Errorf("status Running but no active task recorded")}
		}
	}

	m.state.Status = elfradio.TaskStatusStopping
	active := m.state.Active
	m.state.Active = nil

	if m.store != nil && active != nil {
		if err := m.store.UpdateTaskEndTime(active.ID); err != nil {
			logger.L().Warn("update_task_end_time failed", zap.Error(err), zap.String("task_id", active.ID))
		}
	}

	m.state.Status = elfradio.TaskStatusIdle
	return nil
}
