package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Reading is one stored sensor sample with its backend status label.
type Reading struct {
	ID          int64
	Temperature float64
	Humidity    float64
	VOC         float64
	Status      string
	CreatedAt   time.Time
}

type ChatMessage struct {
	ID          int64
	Type        string // "text" or "recipe"
	Sender      string // "user" or "bot"
	Content     string
	RecipeName  string
	Ingredients []string
	Steps       []string
	CreatedAt   time.Time
}

type Notification struct {
	ID        int64
	Kind      string
	Title     string
	Message   string
	IsRead    bool
	DedupeKey string // optional; a second insert with the same key is ignored
	CreatedAt time.Time
}

const JobStatusTransition = "status_transition"

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
