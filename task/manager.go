package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"

	"clipnorm/config"
	"clipnorm/media"
)

// PreviewRunner processes one task's staged input into a preview output.
// Implemented by pipeline.Runner; mocked in tests.
type PreviewRunner interface {
	Run(ctx context.Context, t *Task) error
}

type Manager struct {
	cfg            *config.Config
	tasks          sync.Map
	taskQueue      chan *Task
	concurrencySem chan struct{}
	runner         PreviewRunner
	log            zerolog.Logger
}

func NewManager(cfg *config.Config, runner PreviewRunner, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{
		cfg:            cfg,
		taskQueue:      make(chan *Task, 100),
		concurrencySem: make(chan struct{}, cfg.MaxConcurrency),
		runner:         runner,
		log:            logger.With().Str("component", "tasks").Logger(),
	}
	return m, nil
}

func (m *Manager) Start(ctx context.Context) {
	m.log.Info().Int("concurrency", m.cfg.MaxConcurrency).Msg("task manager started")
	go m.cleanupLoop(ctx)
	go m.workerLoop(ctx)
}

// workerLoop pulls tasks from the queue and processes them.
func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("worker loop shutting down")
			return
		case t := <-m.taskQueue:
			// Wait for a free processing slot.
			m.concurrencySem <- struct{}{}
			go func(t *Task) {
				defer func() { <-m.concurrencySem }()
				m.processTask(ctx, t)
			}(t)
		}
	}
}

// processTask runs one preview job under its own timeout. Failures stay
// local to the task; nothing here affects other in-flight jobs.
func (m *Manager) processTask(parentCtx context.Context, t *Task) {
	taskCtx, cancel := context.WithTimeout(parentCtx, m.cfg.TaskTimeout)
	t.cancelFunc = cancel
	defer cancel()

	// Canceled while still queued.
	if t.Status == StatusCanceled {
		m.log.Debug().Str("task", t.ID).Msg("task canceled before processing")
		m.removeInput(t)
		return
	}

	m.log.Info().Str("task", t.ID).Str("input", t.InputName).Msg("processing task")
	t.Status = StatusProcessing
	t.StartedAt = time.Now()
	m.tasks.Store(t.ID, t)

	err := m.runner.Run(taskCtx, t)
	m.removeInput(t)

	switch {
	case err == nil:
		m.log.Info().Str("task", t.ID).Str("output", t.OutputName).Msg("task completed")
		t.Status = StatusCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		m.log.Info().Str("task", t.ID).Msg("task canceled or timed out")
		t.Status = StatusCanceled
		t.Error = "task was canceled or timed out"
	default:
		m.log.Warn().Str("task", t.ID).Err(err).Msg("task failed")
		t.Status = StatusFailed
		t.Error = err.Error()
		t.ErrorKind = string(media.KindOf(err))
	}
	t.CompletedAt = time.Now()
	m.tasks.Store(t.ID, t)
}

// removeInput drops the staged upload once a task no longer needs it.
func (m *Manager) removeInput(t *Task) {
	if t.InputPath == "" {
		return
	}
	if err := os.Remove(t.InputPath); err != nil && !os.IsNotExist(err) {
		m.log.Warn().Err(err).Str("path", t.InputPath).Msg("could not remove staged input")
	}
	t.InputPath = ""
}

// cleanupLoop periodically removes expired output files.
func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.OutputLifetime / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("cleanup loop shutting down")
			return
		case <-ticker.C:
			m.tasks.Range(func(key, value interface{}) bool {
				t := value.(*Task)
				if t.Status == StatusCompleted && t.OutputPath != "" && time.Since(t.CompletedAt) > m.cfg.OutputLifetime {
					m.log.Debug().Str("path", t.OutputPath).Msg("cleaning up expired output file")
					os.Remove(t.OutputPath)
					t.OutputPath = ""
					m.tasks.Store(t.ID, t)
				}
				return true
			})
		}
	}
}

// Submit enqueues a preview job for a staged upload.
func (m *Manager) Submit(inputPath, inputName, inputMIME string, limit time.Duration) (*Task, error) {
	t := &Task{
		ID:           fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix()),
		Status:       StatusQueued,
		InputPath:    inputPath,
		InputName:    inputName,
		InputMIME:    inputMIME,
		Limit:        limit,
		LimitSeconds: int(limit / time.Second),
		CreatedAt:    time.Now(),
	}

	m.tasks.Store(t.ID, t)
	m.taskQueue <- t
	m.log.Debug().Str("task", t.ID).Str("input", inputName).Msg("task submitted")
	return t, nil
}

func (m *Manager) Get(taskID string) (*Task, bool) {
	if val, ok := m.tasks.Load(taskID); ok {
		return val.(*Task), true
	}
	return nil, false
}

func (m *Manager) List() []*Task {
	var taskList []*Task
	m.tasks.Range(func(key, value interface{}) bool {
		taskList = append(taskList, value.(*Task))
		return true
	})
	return taskList
}

func (m *Manager) Cancel(taskID string) error {
	val, ok := m.tasks.Load(taskID)
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}

	t := val.(*Task)
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return fmt.Errorf("cannot cancel task in state: %s", t.Status)
	case StatusQueued:
		t.Status = StatusCanceled
		t.Error = "canceled by user while in queue"
		m.tasks.Store(t.ID, t)
		m.log.Debug().Str("task", t.ID).Msg("task marked as canceled in queue")
	case StatusProcessing:
		if t.cancelFunc == nil {
			return fmt.Errorf("task %s is processing but has no cancellation handle", t.ID)
		}
		t.cancelFunc()
		m.log.Debug().Str("task", t.ID).Msg("cancellation signal sent to running task")
	}
	return nil
}

// GetFilePath resolves a download filename inside the temp dir, refusing
// anything path-like.
func (m *Manager) GetFilePath(filename string) (string, error) {
	cleanFilename := filepath.Base(filename)
	if cleanFilename != filename {
		return "", fmt.Errorf("invalid filename")
	}

	fullPath := filepath.Join(m.cfg.TempDir, cleanFilename)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return "", fmt.Errorf("file not found")
	}
	return fullPath, nil
}
