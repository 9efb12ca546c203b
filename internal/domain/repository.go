package domain

import (
	"context"
	"io"
	"net/http"
)

// SessionDriver owns the live browser session: authentication, sidebar
// navigation, and the authenticated HTTP context derived from it.
type SessionDriver interface {
	// Login authenticates against the web app, reusing an existing session
	// when one is still active. A failure here is fatal for the run.
	Login(ctx context.Context, username, password string) error

	// TopLevelFolders expands the root cabinet and enumerates its immediate
	// children in sidebar order.
	TopLevelFolders(ctx context.Context) ([]FolderHandle, error)

	// OpenFolder clicks the folder into view, which as a side effect fires
	// the listing request that the interceptor observes.
	OpenFolder(ctx context.Context, h FolderHandle) error

	// SubfolderHandles reads child folder entries of the currently open
	// folder from the sidebar, for depth-first descent.
	SubfolderHandles(ctx context.Context, parent FolderHandle) ([]FolderHandle, error)

	// AuthenticatedClient returns an HTTP client carrying the session's
	// cookies so direct download calls are accepted as the logged-in user.
	AuthenticatedClient(ctx context.Context) (*http.Client, error)

	// Shutdown releases the browser. Safe to call at any point, repeatedly.
	Shutdown() error
}

// ListingCapturer recovers a complete folder listing from intercepted network
// traffic instead of the rendered (virtually scrolled) DOM.
type ListingCapturer interface {
	// CaptureListing observes network traffic while running trigger, then
	// returns the decoded items. An empty slice with a nil error means no
	// listing exchange was observed within the window (soft failure).
	CaptureListing(ctx context.Context, trigger func() error) ([]Entity, error)
}

// Mirror answers questions about the local destination tree and performs
// collision-safe writes into it. State is always recomputed from the
// filesystem, never cached across calls.
type Mirror interface {
	// ExistingSizes returns the byte sizes of base and all of its
	// disambiguated variants ("base (1)", "base (2)", ...) present in dir.
	ExistingSizes(dir, base string) []int64

	// NextAvailableName returns the full path for base in dir, appending
	// " (n)" counters until an unoccupied name is found.
	NextAvailableName(dir, base string) string

	EnsureDir(path string) error

	// WriteFile streams r to path via a temporary name, renaming into place
	// only on success. On error no partial artifact remains at path.
	WriteFile(path string, r io.Reader) (int64, error)
}

// ProgressTask tracks a single transfer in flight.
type ProgressTask interface {
	Increment(n int)
	Complete()
}

// ProgressReporter renders transfer progress. Implementations must tolerate
// concurrent tasks even though the walk itself is sequential.
type ProgressReporter interface {
	Start(name string, total int64) ProgressTask
	Wait()
}
