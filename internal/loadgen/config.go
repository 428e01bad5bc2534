package loadgen

import "time"

// Config holds configuration for the load run.
type Config struct {
	BaseURL       string        // Base URL of the service
	NumEvents     int           // Number of events to generate
	Projects      int           // Number of projects to spread events over
	Issues        int           // Number of issues per project
	MaxEventCount int64         // Retention quota for the created projects
	Workers       int           // Number of concurrent workers
	Timeout       time.Duration // HTTP request timeout
	SettleTime    time.Duration // How long to wait for digestion and eviction
	LogFile       string        // Log file for run output
	Verbose       bool          // Enable verbose logging
}

// Event represents an event to be submitted.
type Event struct {
	EventID     string `json:"event_id"`
	ProjectID   string `json:"project_id"`
	Fingerprint string `json:"fingerprint"`
	Message     string `json:"message"`
	Level       string `json:"level"`
	TS          string `json:"ts"`
}

// Project mirrors the response from project creation.
type Project struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MaxEventCount int64  `json:"max_event_count"`
}

// ProjectStats mirrors the per-project stats response.
type ProjectStats struct {
	ProjectID     string `json:"project_id"`
	StoredEvents  int64  `json:"stored_events"`
	Issues        int64  `json:"issues"`
	MaxEventCount int64  `json:"max_event_count"`
}

// AckResponse represents the response from event submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated  int
	EventsSubmitted  int
	EventsSuccessful int
	EventsDuplicate  int
	EventsFailed     int
	ProjectsCreated  int
	ProjectsVerified int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
