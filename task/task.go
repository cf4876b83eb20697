package task

import (
	"context"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Task is one preview normalization job. The staged input file is owned
// by the task until processing finishes; the output file until the
// cleanup loop reclaims it.
type Task struct {
	ID           string        `json:"id"`
	Status       Status        `json:"status"`
	Stage        string        `json:"stage,omitempty"` // coarse progress narrative
	InputName    string        `json:"inputName"`
	InputMIME    string        `json:"-"`
	InputPath    string        `json:"-"` // staged upload on local disk
	Limit        time.Duration `json:"-"`
	LimitSeconds int           `json:"limitSeconds"`
	OutputName   string        `json:"outputName,omitempty"`
	OutputMIME   string        `json:"outputMime,omitempty"`
	OutputPath   string        `json:"outputPath,omitempty"`
	DownloadURL  string        `json:"downloadUrl,omitempty"`
	Notes        []string      `json:"notes,omitempty"` // skipped-stage notes
	Error        string        `json:"error,omitempty"`
	ErrorKind    string        `json:"errorKind,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	StartedAt    time.Time     `json:"startedAt,omitempty"`
	CompletedAt  time.Time     `json:"completedAt,omitempty"`
	cancelFunc   context.CancelFunc
}
