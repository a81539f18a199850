package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/logger"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// StoreErrorKind is the persistence-layer error taxonomy.
type StoreErrorKind string

const (
	ErrConnectionFailed StoreErrorKind = "ConnectionFailed"
	ErrMigrationFailed  StoreErrorKind = "MigrationFailed"
	ErrQueryFailed      StoreErrorKind = "QueryFailed"
	ErrIO               StoreErrorKind = "IoError"
	ErrTaskNotFound     StoreErrorKind = "TaskNotFound"
	ErrInvalidData      StoreErrorKind = "InvalidData"
)

// StoreError is the typed error every Store method can return.
type StoreError struct {
	Kind StoreErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *StoreError) Unwrap() error { return e.Err }

func newStoreErr(kind StoreErrorKind, err error) *StoreError {
	return &StoreError{Kind: kind, Err: err}
}

// Store wraps a GORM handle opened with WAL journaling and foreign
// keys enforced via DSN pragmas.
type Store struct {
	db *gorm.DB
}

// Open connects to the store selected by driver ("sqlite" default,
// "mysql", "postgres") and runs AutoMigrate for the Task/LogEntryRow
// models. The sqlite DSN is expected to already carry the
// _journal_mode=WAL&_foreign_keys=on pragmas, as cmd/elfradio builds
// it when database.dsn is left empty.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, newStoreErr(ErrConnectionFailed, fmt.Errorf("unknown database driver %q", driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, newStoreErr(ErrConnectionFailed, err)
	}
	if err := db.AutoMigrate(&Task{}, &LogEntryRow{}); err != nil {
		return nil, newStoreErr(ErrMigrationFailed, err)
	}
	return &Store{db: db}, nil
}

// DeleteTask removes a tasks row; the schema's ON DELETE CASCADE
// takes its log entries with it.
func (s *Store) DeleteTask(taskID string) error {
	res := s.db.Delete(&Task{}, "id = ?", taskID)
	if res.Error != nil {
		return newStoreErr(ErrQueryFailed, res.Error)
	}
	if res.RowsAffected == 0 {
		return newStoreErr(ErrTaskNotFound, fmt.Errorf("task %s not found", taskID))
	}
	return nil
}

// GetTask loads one tasks row by id; used by the export endpoint to
// resolve the task's on-disk directory.
func (s *Store) GetTask(taskID string) (Task, error) {
	var row Task
	if err := s.db.First(&row, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Task{}, newStoreErr(ErrTaskNotFound, fmt.Errorf("task %s not found", taskID))
		}
		return Task{}, newStoreErr(ErrQueryFailed, err)
	}
	return row, nil
}

// InsertTask persists a new TaskInfo row. A failure here must not
// fail task start, so callers log the returned error rather than
// propagate it.
func (s *Store) InsertTask(info elfradio.TaskInfo) error {
	row := Task{
		ID:           info.ID,
		Name:         info.Name,
		Mode:         string(info.Mode),
		StartTime:    info.StartTime,
		TaskDir:      info.TaskDir,
		IsSimulation: info.IsSimulation,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return newStoreErr(ErrQueryFailed, err)
	}
	return nil
}

// UpdateTaskEndTime stamps end_time = now for the given task id. Zero
// rows affected is a warning, not an error.
func (s *Store) UpdateTaskEndTime(taskID string) error {
	now := time.Now()
	res := s.db.Model(&Task{}).Where("id = ?", taskID).Update("end_time", &now)
	if res.Error != nil {
		return newStoreErr(ErrQueryFailed, res.Error)
	}
	if res.RowsAffected == 0 {
		logger.L().Warn("update_task_end_time affected no rows", zap.String("task_id", taskID))
	}
	return nil
}

// InsertLogEntry binds a LogEntry's canonical variant names and
// inserts it, keyed by the entry's own id.
func (s *Store) InsertLogEntry(entry elfradio.LogEntry) error {
	row := LogEntryRow{
		EntryID:     entry.ID,
		TaskID:      entry.TaskID,
		Timestamp:   entry.Timestamp,
		Direction:   string(entry.Direction),
		ContentType: string(entry.ContentType),
		Content:     entry.Content,
	}
	if err := s.db.Omit("Task").Create(&row).Error; err != nil {
		return newStoreErr(ErrQueryFailed, err)
	}
	return nil
}

// CountLogEntries returns the number of log_entries rows for a task.
func (s *Store) CountLogEntries(taskID string) (int64, error) {
	var n int64
	if err := s.db.Model(&LogEntryRow{}).Where("task_id = ?", taskID).Count(&n).Error; err != nil {
		return 0, newStoreErr(ErrQueryFailed, err)
	}
	return n, nil
}

// WriteLogEntryFile atomically appends one JSON-encoded LogEntry line
// to <taskDir>/events.jsonl, creating taskDir if missing.
func WriteLogEntryFile(taskDir string, entry elfradio.LogEntry) error {
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return newStoreErr(ErrIO, err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return newStoreErr(ErrInvalidData, err)
	}
	f, err := os.OpenFile(filepath.Join(taskDir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return newStoreErr(ErrIO, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return newStoreErr(ErrIO, err)
	}
	return nil
}

// WriteLogEntry performs the dual-write policy: file first, then DB,
// each logged-and-continued on failure; neither failure aborts the
// caller.
func WriteLogEntry(s *Store, taskDir string, entry elfradio.LogEntry) {
	if err := WriteLogEntryFile(taskDir, entry); err != nil {
		logger.L().Warn("write log entry to file failed", zap.Error(err), zap.String("task_id", entry.TaskID))
	}
	if s == nil {
		return
	}
	if err := s.InsertLogEntry(entry); err != nil {
		logger.L().Warn("write log entry to db failed", zap.Error(err), zap.String("task_id", entry.TaskID))
	}
}

// ErrTaskNotFoundf builds the TaskNotFound StoreError for taskID. No
// handler in internal/apiserver calls it.
func ErrTaskNotFoundf(taskID string) error {
	return newStoreErr(ErrTaskNotFound, fmt.Errorf("task %s not found", taskID))
}
