package usecase

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neatsync/internal/domain"
)

type fakeSession struct {
	loginErr error
	top      []domain.FolderHandle
	subs     map[string][]domain.FolderHandle

	opened     []string
	lastOpened string
	shutdowns  int
}

func (s *fakeSession) Login(ctx context.Context, username, password string) error {
	return s.loginErr
}

func (s *fakeSession) TopLevelFolders(context.Context) ([]domain.FolderHandle, error) {
	return s.top, nil
}

func (s *fakeSession) OpenFolder(ctx context.Context, h domain.FolderHandle) error {
	s.opened = append(s.opened, h.ID)
	s.lastOpened = h.ID
	return nil
}

func (s *fakeSession) SubfolderHandles(ctx context.Context, parent domain.FolderHandle) ([]domain.FolderHandle, error) {
	return s.subs[parent.ID], nil
}

func (s *fakeSession) AuthenticatedClient(context.Context) (*http.Client, error) {
	return http.DefaultClient, nil
}

func (s *fakeSession) Shutdown() error {
	s.shutdowns++
	return nil
}

// fakeLister returns the canned listing for whichever folder the trigger
// opened, mimicking the capture-around-navigation contract.
type fakeLister struct {
	session  *fakeSession
	listings map[string][]domain.Entity
	failFor  map[string]error
}

func (l *fakeLister) CaptureListing(ctx context.Context, trigger func() error) ([]domain.Entity, error) {
	if err := trigger(); err != nil {
		return nil, err
	}
	if err, ok := l.failFor[l.session.lastOpened]; ok {
		return nil, err
	}
	return l.listings[l.session.lastOpened], nil
}

type fetchCall struct {
	id   string
	dest string
}

type fakeFetcher struct {
	failIDs map[string]bool
	calls   []fetchCall

	// cancelAfter cancels this context once that many resolves have run;
	// failOnCancel then reports the interrupted fetch the way a real one
	// would surface it.
	cancelAfter  int
	cancel       context.CancelFunc
	failOnCancel bool
}

func (f *fakeFetcher) Resolve(ctx context.Context, item domain.Entity, destDir string) (domain.Outcome, error) {
	f.calls = append(f.calls, fetchCall{id: item.ID, dest: destDir})
	if f.cancel != nil && len(f.calls) >= f.cancelAfter {
		f.cancel()
		if f.failOnCancel {
			return domain.OutcomeFailed, ctx.Err()
		}
	}
	if f.failIDs[item.ID] {
		return domain.OutcomeFailed, errors.New("download returned 500 Internal Server Error")
	}
	return domain.OutcomeDownloaded, nil
}

func handle(id, name string) domain.FolderHandle {
	return domain.FolderHandle{ID: id, Name: name, Selector: `[data-testid="` + id + `"]`}
}

func newOrchestrator(s *fakeSession, l *fakeLister, f *fakeFetcher, filter string) *Orchestrator {
	return NewOrchestrator(s, l, f, func(string, domain.Level) {}, zap.NewNop().Sugar(), filter)
}

func TestRunWalksFoldersRecursively(t *testing.T) {
	session := &fakeSession{
		top:  []domain.FolderHandle{handle("f-a", "Receipts")},
		subs: map[string][]domain.FolderHandle{"f-a": {handle("f-a1", "2024")}},
	}
	lister := &fakeLister{
		session: session,
		listings: map[string][]domain.Entity{
			"f-a": {
				{ID: "d1", Name: "Rent.pdf", Kind: domain.KindDocument, DownloadURL: "u1"},
				{ID: "d2", Name: "Power.pdf", Kind: domain.KindDocument, DownloadURL: "u2"},
				{ID: "f-a1", Name: "2024", Kind: domain.KindFolder},
			},
			"f-a1": {
				{ID: "d3", Name: "Jan.pdf", Kind: domain.KindDocument, DownloadURL: "u3"},
			},
		},
	}
	fetcher := &fakeFetcher{}

	stats := newOrchestrator(session, lister, fetcher, "").Run(context.Background(), "u", "p", "/dest")

	require.Equal(t, domain.StateCompleted, stats.State)
	require.Equal(t, 2, stats.FoldersVisited)
	require.Equal(t, 3, stats.FilesFound)
	require.Equal(t, 3, stats.FilesDownloaded)
	require.Zero(t, stats.FilesFailed)
	require.Empty(t, stats.Errors)

	// Folder-kind listing entries never reach the fetcher; subfolder items
	// land under the nested local path.
	require.Equal(t, []fetchCall{
		{id: "d1", dest: filepath.Join("/dest", "Receipts")},
		{id: "d2", dest: filepath.Join("/dest", "Receipts")},
		{id: "d3", dest: filepath.Join("/dest", "Receipts", "2024")},
	}, fetcher.calls)
}

func TestRunIsolatesItemFailures(t *testing.T) {
	session := &fakeSession{top: []domain.FolderHandle{handle("f-a", "Docs")}}
	lister := &fakeLister{
		session: session,
		listings: map[string][]domain.Entity{
			"f-a": {
				{ID: "d1", Name: "ok1.pdf", Kind: domain.KindDocument, DownloadURL: "u1"},
				{ID: "d2", Name: "bad.pdf", Kind: domain.KindDocument, DownloadURL: "u2"},
				{ID: "d3", Name: "ok2.pdf", Kind: domain.KindDocument, DownloadURL: "u3"},
			},
		},
	}
	fetcher := &fakeFetcher{failIDs: map[string]bool{"d2": true}}

	stats := newOrchestrator(session, lister, fetcher, "").Run(context.Background(), "u", "p", "/dest")

	require.Equal(t, domain.StateCompleted, stats.State)
	require.Len(t, fetcher.calls, 3, "failure must not stop the remaining items")
	require.Equal(t, 2, stats.FilesDownloaded)
	require.Equal(t, 1, stats.FilesFailed)
	require.Len(t, stats.Errors, 1)
	require.Equal(t, "bad.pdf", stats.Errors[0].Name)
	require.Contains(t, stats.Errors[0].Reason, "500")
}

func TestRunIsolatesFolderFailures(t *testing.T) {
	session := &fakeSession{
		top: []domain.FolderHandle{handle("f-a", "Broken"), handle("f-b", "Fine")},
	}
	lister := &fakeLister{
		session: session,
		listings: map[string][]domain.Entity{
			"f-b": {{ID: "d1", Name: "ok.pdf", Kind: domain.KindDocument, DownloadURL: "u1"}},
		},
		failFor: map[string]error{"f-a": errors.New("listing capture window elapsed")},
	}
	fetcher := &fakeFetcher{}

	stats := newOrchestrator(session, lister, fetcher, "").Run(context.Background(), "u", "p", "/dest")

	require.Equal(t, domain.StateCompleted, stats.State)
	require.Equal(t, 2, stats.FoldersVisited)
	require.Equal(t, 1, stats.FilesDownloaded)
	require.Len(t, stats.Errors, 1)
	require.Equal(t, "Broken", stats.Errors[0].Name)
}

func TestRunAbortsOnLoginFailure(t *testing.T) {
	session := &fakeSession{loginErr: errors.New("login not confirmed")}
	lister := &fakeLister{session: session}
	fetcher := &fakeFetcher{}

	stats := newOrchestrator(session, lister, fetcher, "").Run(context.Background(), "u", "p", "/dest")

	require.Equal(t, domain.StateAborted, stats.State)
	require.Zero(t, stats.FoldersVisited)
	require.Empty(t, fetcher.calls)
	require.Len(t, stats.Errors, 1)
}

func TestRunStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	session := &fakeSession{
		top: []domain.FolderHandle{handle("f-a", "A"), handle("f-b", "B")},
	}
	lister := &fakeLister{
		session: session,
		listings: map[string][]domain.Entity{
			"f-a": {
				{ID: "d1", Name: "one.pdf", Kind: domain.KindDocument, DownloadURL: "u1"},
				{ID: "d2", Name: "two.pdf", Kind: domain.KindDocument, DownloadURL: "u2"},
			},
			"f-b": {{ID: "d3", Name: "three.pdf", Kind: domain.KindDocument, DownloadURL: "u3"}},
		},
	}
	fetcher := &fakeFetcher{cancelAfter: 1, cancel: cancel}

	stats := newOrchestrator(session, lister, fetcher, "").Run(ctx, "u", "p", "/dest")

	require.Equal(t, domain.StateStopped, stats.State)
	require.Len(t, fetcher.calls, 1, "no item may start after the stop request")
	require.Equal(t, []string{"f-a"}, session.opened, "no folder may open after the stop request")
}

func TestRunStopDoesNotCountInterruptedItemAsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	session := &fakeSession{top: []domain.FolderHandle{handle("f-a", "A")}}
	lister := &fakeLister{
		session: session,
		listings: map[string][]domain.Entity{
			"f-a": {
				{ID: "d1", Name: "one.pdf", Kind: domain.KindDocument, DownloadURL: "u1"},
				{ID: "d2", Name: "two.pdf", Kind: domain.KindDocument, DownloadURL: "u2"},
			},
		},
	}
	fetcher := &fakeFetcher{cancelAfter: 1, cancel: cancel, failOnCancel: true}

	stats := newOrchestrator(session, lister, fetcher, "").Run(ctx, "u", "p", "/dest")

	require.Equal(t, domain.StateStopped, stats.State)
	require.Zero(t, stats.FilesFailed, "a fetch cut short by the stop is not a failure")
	require.Empty(t, stats.Errors)
}

func TestRunFolderFilter(t *testing.T) {
	t.Run("restricts the walk", func(t *testing.T) {
		session := &fakeSession{
			top: []domain.FolderHandle{handle("f-a", "Receipts"), handle("f-b", "Taxes")},
		}
		lister := &fakeLister{
			session: session,
			listings: map[string][]domain.Entity{
				"f-b": {{ID: "d1", Name: "w2.pdf", Kind: domain.KindDocument, DownloadURL: "u1"}},
			},
		}
		fetcher := &fakeFetcher{}

		stats := newOrchestrator(session, lister, fetcher, "taxes").Run(context.Background(), "u", "p", "/dest")

		require.Equal(t, domain.StateCompleted, stats.State)
		require.Equal(t, []string{"f-b"}, session.opened)
		require.Equal(t, 1, stats.FilesDownloaded)
	})

	t.Run("unknown folder aborts", func(t *testing.T) {
		session := &fakeSession{top: []domain.FolderHandle{handle("f-a", "Receipts")}}
		lister := &fakeLister{session: session}
		fetcher := &fakeFetcher{}

		stats := newOrchestrator(session, lister, fetcher, "Nope").Run(context.Background(), "u", "p", "/dest")

		require.Equal(t, domain.StateAborted, stats.State)
		require.Empty(t, session.opened)
	})
}
