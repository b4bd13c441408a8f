package workspace

import (
	"context"
	"log/slog"
	"time"

	"docconvert/internal/logging"
)

// Task is one periodic maintenance job.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Janitor runs maintenance tasks on a fixed interval.
type Janitor struct {
	interval time.Duration
	tasks    []Task
	logger   *slog.Logger
}

// NewJanitor returns a janitor for tasks. A non-positive interval defaults to five minutes.
func NewJanitor(interval time.Duration, logger *slog.Logger, tasks ...Task) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Janitor{interval: interval, tasks: tasks, logger: logger}
}

// CleanupTask wraps Manager.Cleanup as a janitor task.
func (m *Manager) CleanupTask() Task {
	return Task{
		Name: "workspace_cleanup",
		Run: func(ctx context.Context) error {
			_, err := m.Cleanup(ctx)
			return err
		},
	}
}

// Run blocks, running every task once per interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task in order. A failing task does not stop the others.
func (j *Janitor) RunOnce(ctx context.Context) {
	for _, t := range j.tasks {
		start := time.Now()
		if err := t.Run(ctx); err != nil {
			j.logger.Warn("janitor_task_failed", "task", t.Name, "error", err)
			continue
		}
		j.logger.Debug("janitor_task_done", "task", t.Name, "duration_ms", time.Since(start).Milliseconds())
	}
}
