package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"neatsync/internal/domain"
	"neatsync/internal/pkg/sanitize"
)

// Fetcher resolves one listed document into a destination directory.
// Satisfied by DownloadResolver.
type Fetcher interface {
	Resolve(ctx context.Context, item domain.Entity, destDir string) (domain.Outcome, error)
}

// Orchestrator walks the remote folder tree depth first and drives per-item
// resolution. The walk is strictly sequential; stopping is modeled as context
// cancellation and checked at every folder and item boundary.
type Orchestrator struct {
	session domain.SessionDriver
	lister  domain.ListingCapturer
	fetcher Fetcher
	status  domain.StatusFunc
	log     *zap.SugaredLogger

	// folderFilter restricts the walk to one top-level folder when non-empty.
	folderFilter string
}

func NewOrchestrator(
	session domain.SessionDriver,
	lister domain.ListingCapturer,
	fetcher Fetcher,
	status domain.StatusFunc,
	log *zap.SugaredLogger,
	folderFilter string,
) *Orchestrator {
	return &Orchestrator{
		session:      session,
		lister:       lister,
		fetcher:      fetcher,
		status:       status,
		log:          log,
		folderFilter: folderFilter,
	}
}

// Run executes a full backup into destRoot. It always returns usable stats;
// failures before the first folder leave the state at Aborted.
func (o *Orchestrator) Run(ctx context.Context, username, password, destRoot string) *domain.RunStats {
	stats := &domain.RunStats{State: domain.StateAborted}

	if err := o.session.Login(ctx, username, password); err != nil {
		if ctx.Err() != nil {
			stats.State = domain.StateStopped
			return stats
		}
		o.status(fmt.Sprintf("Login failed: %v", err), domain.LevelError)
		stats.Errors = append(stats.Errors, domain.ItemError{Name: "login", Reason: err.Error()})
		return stats
	}

	folders, err := o.session.TopLevelFolders(ctx)
	if err != nil {
		if ctx.Err() != nil {
			stats.State = domain.StateStopped
			return stats
		}
		o.status(fmt.Sprintf("Could not read the folder list: %v", err), domain.LevelError)
		stats.Errors = append(stats.Errors, domain.ItemError{Name: "folders", Reason: err.Error()})
		return stats
	}

	if o.folderFilter != "" {
		folders = filterFolders(folders, o.folderFilter)
		if len(folders) == 0 {
			o.status(fmt.Sprintf("No top-level folder named %q", o.folderFilter), domain.LevelError)
			stats.Errors = append(stats.Errors, domain.ItemError{Name: o.folderFilter, Reason: "folder not found"})
			return stats
		}
	}

	for _, folder := range folders {
		if ctx.Err() != nil {
			break
		}
		o.processFolder(ctx, stats, folder, filepath.Join(destRoot, sanitize.Name(folder.Name)))
	}

	if ctx.Err() != nil {
		stats.State = domain.StateStopped
		o.status("Backup stopped", domain.LevelWarning)
	} else {
		stats.State = domain.StateCompleted
		o.status("Backup completed", domain.LevelSuccess)
	}
	return stats
}

func filterFolders(folders []domain.FolderHandle, name string) []domain.FolderHandle {
	for _, f := range folders {
		if strings.EqualFold(f.Name, name) {
			return []domain.FolderHandle{f}
		}
	}
	return nil
}

// processFolder handles one folder and recurses into its subfolders. All
// errors inside are folder or item scoped: they are recorded and the walk
// moves on.
func (o *Orchestrator) processFolder(ctx context.Context, stats *domain.RunStats, h domain.FolderHandle, destDir string) {
	if ctx.Err() != nil {
		return
	}

	o.status(fmt.Sprintf("Processing folder %s", h.Name), domain.LevelInfo)
	stats.FoldersVisited++

	items, err := o.lister.CaptureListing(ctx, func() error {
		return o.session.OpenFolder(ctx, h)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.status(fmt.Sprintf("Folder %s failed: %v", h.Name, err), domain.LevelError)
		stats.Errors = append(stats.Errors, domain.ItemError{Name: h.Name, Reason: err.Error()})
		return
	}
	if len(items) == 0 {
		o.status(fmt.Sprintf("No items observed in %s", h.Name), domain.LevelWarning)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		if item.Kind != domain.KindDocument {
			// Subfolders are walked via the sidebar, not the listing.
			continue
		}
		stats.FilesFound++

		outcome, err := o.fetcher.Resolve(ctx, item, destDir)
		switch outcome {
		case domain.OutcomeDownloaded:
			stats.FilesDownloaded++
		case domain.OutcomeSkipped:
			stats.FilesSkipped++
		case domain.OutcomeFailed:
			if ctx.Err() != nil {
				// An interrupted fetch is part of the stop, not a failure.
				return
			}
			reason := "unknown error"
			if err != nil {
				reason = err.Error()
			}
			o.status(fmt.Sprintf("Failed %s: %s", item.DisplayName(), reason), domain.LevelError)
			stats.RecordFailure(item.DisplayName(), reason)
		}
	}

	subfolders, err := o.session.SubfolderHandles(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.status(fmt.Sprintf("Could not list subfolders of %s: %v", h.Name, err), domain.LevelWarning)
		stats.Errors = append(stats.Errors, domain.ItemError{Name: h.Name, Reason: "subfolders: " + err.Error()})
		return
	}
	for _, sub := range subfolders {
		if ctx.Err() != nil {
			return
		}
		o.processFolder(ctx, stats, sub, filepath.Join(destDir, sanitize.Name(sub.Name)))
	}
}
