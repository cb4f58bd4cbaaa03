package worker

import (
	"time"
)

// Status is the client lifecycle state.
type Status string

// Client states.
const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
)

// Bus events emitted by the client.
const (
	EventReady     = "worker:ready"
	EventLibraries = "worker:libraries"
	EventPreset    = "worker:preset"
	EventQuery     = "worker:query"
	EventResult    = "worker:result"
	EventError     = "worker:error"
	EventTimeout   = "worker:timeout"
)

// Event is the payload of every worker:* bus event. Payload holds the
// decoded response payload, or nil for timeouts.
type Event struct {
	Type      Kind   `json:"type"`
	RequestID uint64 `json:"requestId"`
	Payload   any    `json:"payload,omitempty"`
}

// State is the worker domain of the state store. Timestamps are Unix
// milliseconds.
type State struct {
	Enabled         bool    `json:"enabled"`
	Status          Status  `json:"status"`
	Mode            string  `json:"mode"`
	ClientID        string  `json:"clientId,omitempty"`
	LastPingAt      *int64  `json:"lastPingAt"`
	LastResultAt    *int64  `json:"lastResultAt"`
	LastError       *string `json:"lastError"`
	AnalysisHz      float64 `json:"analysisHz"`
	DroppedJobs     uint64  `json:"droppedJobs"`
	Timeouts        uint64  `json:"timeouts"`
	StaleResults    uint64  `json:"staleResults"`
	LibrariesLoaded bool    `json:"librariesLoaded"`
}

// DefaultState is the worker domain before the client starts.
func DefaultState() State {
	return State{Enabled: true, Status: StatusIdle, Mode: "auto"}
}

// Clock abstracts time for the client.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
