package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"neatsync/internal/adapter/browser"
	"neatsync/internal/adapter/filesystem"
	"neatsync/internal/adapter/ui"
	"neatsync/internal/config"
	"neatsync/internal/domain"
	"neatsync/internal/logging"
	"neatsync/internal/usecase"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.ParseCLI(os.Args)
	if err != nil {
		return 2, err
	}

	log, err := logging.New(logging.Config{Verbose: cfg.Verbose, File: cfg.LogFile})
	if err != nil {
		return 1, err
	}
	defer log.Sync()

	// Ctrl-C requests a graceful stop; the walk finishes the current item
	// checks and reports partial progress.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := ui.NewConsoleUI(log, cfg.NonInteractive)
	defer console.Close()

	switch cfg.Command {
	case "login":
		return runLogin(cfg, console)
	case "folders":
		return runFolders(ctx, cfg, console, log)
	case "backup":
		return runBackup(ctx, cfg, console, log)
	default:
		return 2, fmt.Errorf("unknown command: %s", cfg.Command)
	}
}

func runLogin(cfg *config.CLIConfig, console *ui.ConsoleUI) (int, error) {
	if cfg.NonInteractive {
		return 2, errors.New("login requires an interactive terminal")
	}
	username, password, err := console.PromptCredentials()
	if err != nil {
		return 1, err
	}
	if err := config.SaveCredentials(cfg.ConfigDir, username, password); err != nil {
		return 1, fmt.Errorf("store credentials: %w", err)
	}
	console.Status("Credentials stored", domain.LevelSuccess)
	return 0, nil
}

// credentials loads the stored pair, falling back to an interactive prompt.
func credentials(cfg *config.CLIConfig, console *ui.ConsoleUI) (string, string, error) {
	username, password, err := config.LoadCredentials(cfg.ConfigDir)
	if err == nil {
		return username, password, nil
	}
	if !errors.Is(err, config.ErrNoCredentials) {
		console.Status("Stored credentials unreadable, asking again", domain.LevelWarning)
	}
	if cfg.NonInteractive {
		return "", "", fmt.Errorf("no usable stored credentials; run `neatsync login` first")
	}
	return console.PromptCredentials()
}

func runFolders(ctx context.Context, cfg *config.CLIConfig, console *ui.ConsoleUI, log *zap.SugaredLogger) (int, error) {
	username, password, err := credentials(cfg, console)
	if err != nil {
		return 1, err
	}

	driver := browser.NewDriver(log, console.Status, cfg.Settings.ChromeHeadless, cfg.Settings.WaitTimeoutDuration())
	defer driver.Shutdown()

	if err := driver.Login(ctx, username, password); err != nil {
		return 1, fmt.Errorf("login: %w", err)
	}
	folders, err := driver.TopLevelFolders(ctx)
	if err != nil {
		return 1, fmt.Errorf("list folders: %w", err)
	}
	for _, f := range folders {
		fmt.Println(f.Name)
	}
	return 0, nil
}

func runBackup(ctx context.Context, cfg *config.CLIConfig, console *ui.ConsoleUI, log *zap.SugaredLogger) (int, error) {
	username, password, err := credentials(cfg, console)
	if err != nil {
		return 1, err
	}

	driver := browser.NewDriver(log, console.Status, cfg.Settings.ChromeHeadless, cfg.Settings.WaitTimeoutDuration())
	defer driver.Shutdown()

	interceptor := browser.NewInterceptor(driver, log, cfg.Settings.WaitTimeoutDuration(), cfg.Settings.DownloadTimeoutDuration())
	mirror := filesystem.NewLocalMirror()
	resolver := usecase.NewDownloadResolver(
		driver, mirror, console, console.Status, log,
		cfg.Settings.DownloadTimeoutDuration(), cfg.Settings.DelayDuration(),
	)
	orchestrator := usecase.NewOrchestrator(driver, interceptor, resolver, console.Status, log, cfg.Folder)

	stats := orchestrator.Run(ctx, username, password, cfg.Settings.DownloadDir)
	console.Wait()
	console.PrintSummary(stats)

	switch stats.State {
	case domain.StateCompleted:
		if stats.FilesFailed > 0 {
			return 1, nil
		}
		return 0, nil
	case domain.StateStopped:
		return 130, nil
	default:
		return 1, nil
	}
}
