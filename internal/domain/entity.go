package domain

// EntityKind distinguishes documents from sub-folders in a listing.
type EntityKind int

const (
	KindDocument EntityKind = iota
	KindFolder
)

// Entity represents one remote item (document or sub-folder) decoded from a
// captured listing response. Entities are constructed fresh per folder visit
// and discarded once the folder is done.
type Entity struct {
	ID          string // remote webid
	Name        string
	Description string
	Kind        EntityKind
	Size        int64  // declared byte size, 0 when the listing omitted it
	DownloadURL string // documents only; session-bound, time-limited
	ParentID    string // folder the entity was listed under
}

// DisplayName is the name the web app itself uses when exporting a document.
func (e Entity) DisplayName() string {
	if e.Description != "" {
		return e.Name + " - " + e.Description
	}
	return e.Name
}

// FolderHandle identifies a remote folder together with the navigation hook
// (a sidebar CSS selector) needed to open it in the browser session.
type FolderHandle struct {
	ID       string
	Name     string
	Selector string
}

// Outcome classifies the result of resolving and fetching a single document.
type Outcome int

const (
	OutcomeDownloaded Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunState is the terminal state of a backup run.
type RunState int

const (
	// StateAborted means the run failed before any folder was processed.
	StateAborted RunState = iota
	// StateCompleted means the walk visited every discovered folder.
	StateCompleted
	// StateStopped means an external stop request ended the run early.
	StateStopped
)

func (s RunState) String() string {
	switch s {
	case StateAborted:
		return "aborted"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ItemError records one per-item or per-folder failure for the final summary.
type ItemError struct {
	Name   string
	Reason string
}

// RunStats accumulates counters over a backup run. It is recomputed from
// scratch on every run; nothing is persisted between runs.
type RunStats struct {
	FoldersVisited  int
	FilesFound      int
	FilesDownloaded int
	FilesSkipped    int
	FilesFailed     int
	Errors          []ItemError
	State           RunState
}

// RecordFailure appends a failure and bumps the tally.
func (s *RunStats) RecordFailure(name, reason string) {
	s.FilesFailed++
	s.Errors = append(s.Errors, ItemError{Name: name, Reason: reason})
}

// Level classifies a status message for the UI collaborator.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusFunc receives progress and error messages as they occur. Implementations
// must not block the caller; the walk never waits on status delivery.
type StatusFunc func(message string, level Level)
