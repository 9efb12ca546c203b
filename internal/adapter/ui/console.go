// Package ui handles terminal interaction: status lines, credential prompts
// and download progress bars.
package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"

	"neatsync/internal/domain"
)

const statusBuffer = 256

// ConsoleUI prints status lines and renders progress bars. Status delivery is
// fire and forget: messages flow through a buffered channel drained by a
// single goroutine, and excess messages are dropped rather than blocking the
// backup walk.
type ConsoleUI struct {
	log            *zap.SugaredLogger
	progress       *mpb.Progress
	nonInteractive bool

	statusCh chan statusMsg
	done     chan struct{}
}

type statusMsg struct {
	text  string
	level domain.Level
}

func NewConsoleUI(log *zap.SugaredLogger, nonInteractive bool) *ConsoleUI {
	var p *mpb.Progress
	if !nonInteractive {
		p = mpb.New(mpb.WithWidth(64))
	}
	u := &ConsoleUI{
		log:            log,
		progress:       p,
		nonInteractive: nonInteractive,
		statusCh:       make(chan statusMsg, statusBuffer),
		done:           make(chan struct{}),
	}
	go u.pump()
	return u
}

func (u *ConsoleUI) pump() {
	defer close(u.done)
	for msg := range u.statusCh {
		fmt.Printf("%s %s\n", symbol(msg.level), msg.text)
	}
}

func symbol(l domain.Level) string {
	switch l {
	case domain.LevelSuccess:
		return "✓"
	case domain.LevelWarning:
		return "⚠"
	case domain.LevelError:
		return "✗"
	default:
		return "ℹ"
	}
}

// Status satisfies domain.StatusFunc. Never blocks.
func (u *ConsoleUI) Status(message string, level domain.Level) {
	switch level {
	case domain.LevelWarning:
		u.log.Warnw(message)
	case domain.LevelError:
		u.log.Errorw(message)
	default:
		u.log.Infow(message)
	}

	select {
	case u.statusCh <- statusMsg{text: message, level: level}:
	default:
		// Console is lagging; the log file still has everything.
	}
}

// Close drains and stops the status pump. Call once, after the run.
func (u *ConsoleUI) Close() {
	close(u.statusCh)
	<-u.done
}

// PromptCredentials asks for the account email and password interactively.
func (u *ConsoleUI) PromptCredentials() (username, password string, err error) {
	userPrompt := promptui.Prompt{
		Label: "Neat account email",
		Validate: func(input string) error {
			if !strings.Contains(input, "@") {
				return errors.New("not an email address")
			}
			return nil
		},
	}
	username, err = userPrompt.Run()
	if err != nil {
		return "", "", err
	}

	passPrompt := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(input string) error {
			if len(input) == 0 {
				return errors.New("password cannot be empty")
			}
			return nil
		},
	}
	password, err = passPrompt.Run()
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

// PrintSummary writes the end-of-run report.
func (u *ConsoleUI) PrintSummary(stats *domain.RunStats) {
	fmt.Println()
	fmt.Printf("Run %s\n", stats.State)
	fmt.Printf("  Folders visited:  %d\n", stats.FoldersVisited)
	fmt.Printf("  Files found:      %d\n", stats.FilesFound)
	fmt.Printf("  Downloaded:       %d\n", stats.FilesDownloaded)
	fmt.Printf("  Skipped:          %d\n", stats.FilesSkipped)
	fmt.Printf("  Failed:           %d\n", stats.FilesFailed)

	if len(stats.Errors) == 0 {
		return
	}
	const maxShown = 20
	fmt.Println("  Errors:")
	for i, e := range stats.Errors {
		if i == maxShown {
			fmt.Printf("    ... and %d more (see the log file)\n", len(stats.Errors)-maxShown)
			break
		}
		fmt.Printf("    ✗ %s: %s\n", e.Name, e.Reason)
	}
}

// Progress reporter implementation.

func (u *ConsoleUI) Start(name string, total int64) domain.ProgressTask {
	if u.nonInteractive {
		return &nonInteractiveTask{name: name, startTime: time.Now()}
	}

	bar := u.progress.AddBar(total,
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1}),
			decor.Counters(decor.SizeB1024(0), "% .2f / % .2f", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.Percentage(decor.WCSyncSpace), "done",
			),
			decor.AverageSpeed(decor.SizeB1024(0), "% .2f", decor.WCSyncSpace),
		),
	)
	return &mpbTask{bar: bar}
}

func (u *ConsoleUI) Wait() {
	if u.nonInteractive {
		return
	}
	u.progress.Wait()
	// mpb containers are single-use; rebuild for the next transfer batch.
	u.progress = mpb.New(mpb.WithWidth(64))
}

type mpbTask struct {
	bar *mpb.Bar
}

func (t *mpbTask) Increment(n int) {
	t.bar.IncrBy(n)
}

func (t *mpbTask) Complete() {
	t.bar.SetTotal(-1, true)
}

type nonInteractiveTask struct {
	name      string
	current   int64
	startTime time.Time
}

func (t *nonInteractiveTask) Increment(n int) {
	t.current += int64(n)
}

func (t *nonInteractiveTask) Complete() {
	elapsed := time.Since(t.startTime).Seconds()
	speed := float64(t.current) / elapsed
	fmt.Printf("Finished: %s | Size: %s | Speed: %s/s\n",
		t.name,
		formatSize(t.current),
		formatSize(int64(speed)),
	)
}

func formatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
