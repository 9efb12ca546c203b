// Package config manages application settings and the encrypted credential
// store under the user's configuration directory.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Settings holds the application configuration.
type Settings struct {
	DownloadDir       string `json:"download_dir"`
	ChromeHeadless    bool   `json:"chrome_headless"`
	WaitTimeout       int    `json:"wait_timeout"`        // seconds, UI wait bound
	DownloadTimeout   int    `json:"download_timeout"`    // seconds, HTTP fetch bound
	DelayBetweenFiles int    `json:"delay_between_files"` // seconds, pacing between fetches
}

// Defaults returns the built-in configuration.
func Defaults() Settings {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Settings{
		DownloadDir:       filepath.Join(home, "NeatBackup"),
		ChromeHeadless:    false,
		WaitTimeout:       10,
		DownloadTimeout:   30,
		DelayBetweenFiles: 1,
	}
}

// Dir returns the configuration directory, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, ".neatsync")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// Load reads config.json from dir on top of the defaults. A missing file is
// not an error; unknown keys are ignored.
func Load(dir string) (Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Defaults(), err
	}
	return s, nil
}

// Save writes the settings to config.json in dir.
func (s Settings) Save(dir string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)
}

// WaitTimeoutDuration returns the UI wait bound as a duration.
func (s Settings) WaitTimeoutDuration() time.Duration {
	return time.Duration(s.WaitTimeout) * time.Second
}

// DownloadTimeoutDuration returns the HTTP fetch bound as a duration.
func (s Settings) DownloadTimeoutDuration() time.Duration {
	return time.Duration(s.DownloadTimeout) * time.Second
}

// DelayDuration returns the inter-file pacing delay as a duration.
func (s Settings) DelayDuration() time.Duration {
	return time.Duration(s.DelayBetweenFiles) * time.Second
}
