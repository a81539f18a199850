package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/elfradio"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", "file:"+filepath.Join(t.TempDir(), "test.db")+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func testTaskInfo(dir string) elfradio.TaskInfo {
	return elfradio.TaskInfo{
		ID:        "task-1",
		Name:      "GeneralCommunication_test",
		Mode:      elfradio.TaskModeGeneralCommunication,
		StartTime: time.Now(),
		TaskDir:   dir,
	}
}

func TestInsertTask_AndGetTask(t *testing.T) {
	s := openTestStore(t)
	info := testTaskInfo(t.TempDir())

	if err := s.InsertTask(info); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	row, err := s.GetTask(info.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if row.Name != info.Name || row.TaskDir != info.TaskDir {
		t.Fatalf("row mismatch: %+v", row)
	}
	if row.EndTime != nil {
		t.Fatal("end_time must be null before stop")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetTask("nope")
	storeErr, ok := err.(*StoreError)
	if !ok || storeErr.Kind != ErrTaskNotFound {
		t.Fatalf("expected TaskNotFound, got %v", err)
	}
}

func TestUpdateTaskEndTime(t *testing.T) {
	s := openTestStore(t)
	info := testTaskInfo(t.TempDir())
	if err := s.InsertTask(info); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.UpdateTaskEndTime(info.ID); err != nil {
		t.Fatalf("update end time: %v", err)
	}
	row, err := s.GetTask(info.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.EndTime == nil {
		t.Fatal("end_time still null after update")
	}

	// Zero rows affected warns but does not error.
	if err := s.UpdateTaskEndTime("missing"); err != nil {
		t.Fatalf("update on missing id must not error, got %v", err)
	}
}

func TestLogEntry_DBCountMatchesInserts(t *testing.T) {
	s := openTestStore(t)
	info := testTaskInfo(t.TempDir())
	if err := s.InsertTask(info); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const n = 7
	for i := 0; i < n; i++ {
		entry := elfradio.NewLogEntry(info.ID, elfradio.LogDirectionInternal, elfradio.LogContentStatus, fmt.Sprintf("entry %d", i))
		if err := s.InsertLogEntry(entry); err != nil {
			t.Fatalf("insert entry %d: %v", i, err)
		}
	}

	count, err := s.CountLogEntries(info.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != n {
		t.Fatalf("count = %d, want %d", count, n)
	}
}

func TestDeleteTask_CascadesLogEntries(t *testing.T) {
	s := openTestStore(t)
	info := testTaskInfo(t.TempDir())
	if err := s.InsertTask(info); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for i := 0; i < 3; i++ {
		entry := elfradio.NewLogEntry(info.ID, elfradio.LogDirectionInternal, elfradio.LogContentStatus, fmt.Sprintf("entry %d", i))
		if err := s.InsertLogEntry(entry); err != nil {
			t.Fatalf("insert entry %d: %v", i, err)
		}
	}

	if err := s.DeleteTask(info.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	count, err := s.CountLogEntries(info.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascade to remove log entries, %d remain", count)
	}
}

func TestWriteLogEntryFile_OrderPreserved(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "task")

	for i := 0; i < 5; i++ {
		entry := elfradio.NewLogEntry("t", elfradio.LogDirectionOutgoing, elfradio.LogContentText, fmt.Sprintf("line %d", i))
		if err := WriteLogEntryFile(dir, entry); err != nil {
			t.Fatalf("write entry %d: %v", i, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	i := 0
	for scanner.Scan() {
		var entry elfradio.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line %d unparseable: %v", i, err)
		}
		if want := fmt.Sprintf("line %d", i); entry.Content != want {
			t.Fatalf("line %d = %q, want %q", i, entry.Content, want)
		}
		i++
	}
	if i != 5 {
		t.Fatalf("read %d lines, want 5", i)
	}
}

func TestWriteLogEntry_DualWriteSurvivesNilStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "task")
	entry := elfradio.NewLogEntry("t", elfradio.LogDirectionInternal, elfradio.LogContentStatus, "degraded")

	// Must not panic or error: file written, DB skipped.
	WriteLogEntry(nil, dir, entry)

	if _, err := os.Stat(filepath.Join(dir, "events.jsonl")); err != nil {
		t.Fatalf("events.jsonl missing: %v", err)
	}
}
