package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# default language for synthesis
language: "sa"

provider:
  # synthesis provider: http, stream, or mock
  kind: "http"
  # endpoint of the synthesis service
  endpoint: ""
  # bearer token, if the service wants one
  token: ""
  # audio container the provider answers with: mp3, wav, or pcm
  format: "mp3"
  # optional second provider used after repeated primary failures
  fallback_kind: ""
  fallback_endpoint: ""
  # request budget shared by playback and prefetch
  requests_per_minute: 60
  # how long to wait for one synthesis response
  fetch_timeout: "15s"

cache:
  # cache directory (default: the OS user cache dir)
  dir: ""
  name: "audio"
  # bump to invalidate every persisted entry
  version: 1
  memory_max_entries: 64
  memory_max_bytes: 33554432
  disk_max_bytes: 268435456
  # optional shared blob tier, checked after memory and disk
  remote_endpoint: ""
  metadata_timeout: "2s"

playback:
  sample_rate: 24000
  channels: 1
  # how long a started clip may stay silent before retrying
  start_timeout: "1500ms"
  # attempts per line before the silent fallback takes over
  max_start_attempts: 2
  volume: 1.0

prefetch:
  enabled: true
  # lines warmed behind the reading position
  lookahead: 2
  workers: 1

log:
  # debug, info, warn, or error
  level: "info"
  # optional log file (logs go to stderr otherwise)
  file: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the shravan config file",
	Long:    paragraph(fmt.Sprintf("\n%s the shravan config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("shravan config\nshravan config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Shravan", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
