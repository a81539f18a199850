// Package store is the relational persistence layer: GORM models for
// the tasks and log_entries tables, plus the per-task events.jsonl
// file mirror.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// JSONMap is a flat string-keyed map persisted as a single JSON text
// column through driver.Valuer/sql.Scanner.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Task is the GORM model for the tasks table.
type Task struct {
	ID           string     `gorm:"column:id;primaryKey"`
	Name         string     `gorm:"column:name"`
	Mode         string     `gorm:"column:mode"`
	StartTime    time.Time  `gorm:"column:start_time"`
	EndTime      *time.Time `gorm:"column:end_time"`
	TaskDir      string     `gorm:"column:task_dir;uniqueIndex"`
	IsSimulation bool       `gorm:"column:is_simulation"`
	MetadataJSON JSONMap    `gorm:"column:metadata_json;type:text"`
}

func (Task) TableName() string { return "tasks" }

// LogEntryRow is the GORM model for the log_entries table. The Task
// association gives the migrated schema its ON DELETE CASCADE foreign
// key, so deleting a task removes its log entries.
type LogEntryRow struct {
	EntryID     string    `gorm:"column:entry_id;primaryKey"`
	TaskID      string    `gorm:"column:task_id;index"`
	Task        Task      `gorm:"foreignKey:TaskID;references:ID;constraint:OnDelete:CASCADE"`
	Timestamp   time.Time `gorm:"column:timestamp;index"`
	Direction   string    `gorm:"column:direction"`
	ContentType string    `gorm:"column:content_type"`
	Content     string    `gorm:"column:content"`
}

func (LogEntryRow) TableName() string { return "log_entries" }
