package config

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds the configuration parsed from command line arguments,
// flags layered over the config file.
type CLIConfig struct {
	Command        string
	Settings       Settings
	ConfigDir      string
	Folder         string // restrict backup to a single top-level folder
	LogFile        string
	Verbose        bool
	NonInteractive bool
	SaveSettings   bool
}

const usage = "usage: neatsync <command> [flags]\nCommands: backup, login, folders"

// ParseCLI parses the subcommand and its flags.
func ParseCLI(args []string) (*CLIConfig, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s", usage)
	}

	cmd := args[1]
	switch cmd {
	case "backup", "login", "folders":
	default:
		return nil, fmt.Errorf("unknown command: %s\n%s", cmd, usage)
	}

	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir: %w", err)
	}
	settings, err := Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := &CLIConfig{Command: cmd, Settings: settings, ConfigDir: dir}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.StringVar(&cfg.Settings.DownloadDir, "dir", cfg.Settings.DownloadDir, "Destination root for the backup tree")
	fs.BoolVar(&cfg.Settings.ChromeHeadless, "headless", cfg.Settings.ChromeHeadless, "Run Chrome without a visible window")
	fs.IntVar(&cfg.Settings.WaitTimeout, "wait-timeout", cfg.Settings.WaitTimeout, "UI wait bound in seconds")
	fs.IntVar(&cfg.Settings.DownloadTimeout, "download-timeout", cfg.Settings.DownloadTimeout, "Per-file HTTP fetch bound in seconds")
	fs.IntVar(&cfg.Settings.DelayBetweenFiles, "delay", cfg.Settings.DelayBetweenFiles, "Pause between fetches in seconds")
	fs.StringVar(&cfg.Folder, "folder", "", "Back up only the named top-level folder")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Write a full diagnostic log (JSON) to this file")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose diagnostic output on stderr")
	fs.BoolVar(&cfg.NonInteractive, "non-interactive", false, "Disable prompts and progress bars")
	fs.BoolVar(&cfg.SaveSettings, "save", false, "Persist the effective settings to the config file")

	if err := fs.Parse(args[2:]); err != nil {
		return nil, err
	}

	if cfg.Settings.WaitTimeout <= 0 || cfg.Settings.DownloadTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be positive")
	}

	// CAPTCHA challenges need a visible browser window.
	if cfg.Settings.ChromeHeadless && !cfg.NonInteractive && cmd == "backup" {
		fmt.Fprintln(os.Stderr, "note: headless mode cannot pause for manual CAPTCHA solving")
	}

	if cfg.SaveSettings {
		if err := cfg.Settings.Save(dir); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
	}

	return cfg, nil
}
