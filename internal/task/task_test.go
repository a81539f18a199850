package task

import (
	"os"
	"testing"

	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/config"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	state := elfradio.NewAppState(&config.ConfigSnapshot{})
	return NewManager(state, nil, bus.New(), dir)
}

func TestStartTask_Success(t *testing.T) {
	m := newTestManager(t)

	info, err := m.Start(elfradio.TaskModeGeneralCommunication)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if info.ID == "" {
		t.Fatal("expected a non-empty task id")
	}
	if info.IsSimulation {
		t.Fatal("GeneralCommunication must not be marked simulation")
	}
	if _, err := os.Stat(info.TaskDir); err != nil {
		t.Fatalf("expected task_dir to exist: %v", err)
	}
	if m.state.TaskStatusNow() != elfradio.TaskStatusRunning {
		t.Fatalf("expected status Running, got %s", m.state.TaskStatusNow())
	}
}

func TestStartTask_AlreadyRunning(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Start(elfradio.TaskModeGeneralCommunication); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	_, err := m.Start(elfradio.TaskModeAirbandListening)
	var taskErr *Error
	if err == nil {
		t.Fatal("expected an error starting a task while one is running")
	}
	if !asError(err, &taskErr) || taskErr.Kind != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStopTask_Success(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Start(elfradio.TaskModeGeneralCommunication); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if m.state.TaskStatusNow() != elfradio.TaskStatusIdle {
		t.Fatalf("expected status Idle after stop, got %s", m.state.TaskStatusNow())
	}
	if _, active := m.state.ActiveTaskInfo(); active {
		t.Fatal("expected no active task after stop")
	}
}

func TestStopTask_WhenIdle(t *testing.T) {
	m := newTestManager(t)

	err := m.Stop()
	var taskErr *Error
	if err == nil {
		t.Fatal("expected an error stopping while idle")
	}
	if !asError(err, &taskErr) || taskErr.Kind != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestStartTask_ConcurrentOnlyOneSucceeds(t *testing.T) {
	m := newTestManager(t)

	const attempts = 16
	results := make(chan error, attempts)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		go func() {
			<-start
			_, err := m.Start(elfradio.TaskModeGeneralCommunication)
			results <- err
		}()
	}
	close(start)

	var successes, conflicts int
	for i := 0; i < attempts; i++ {
		err := <-results
		if err == nil {
			successes++
			continue
		}
		var taskErr *Error
		if asError(err, &taskErr) && taskErr.Kind == ErrAlreadyRunning {
			conflicts++
		}
	}
	if successes != 1 || conflicts != attempts-1 {
		t.Fatalf("got %d successes / %d conflicts, want 1 / %d", successes, conflicts, attempts-1)
	}
}

func asError(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}
