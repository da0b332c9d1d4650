package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// logger is the process-wide logger. setupLog points it at the
// configured sink and level before any command runs.
var logger = log.New(os.Stderr)

// setupLog applies the log section of the configuration. The returned
// closer flushes the log file when one is in use.
func setupLog() (func() error, error) {
	level := viper.GetString("log.level")
	if env := os.Getenv("SHRAVAN_LOG_LEVEL"); env != "" {
		level = env
	}
	if parsed, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}

	file := viper.GetString("log.file")
	if env := os.Getenv("SHRAVAN_LOG_FILE"); env != "" {
		file = env
	}
	if file == "" {
		return func() error { return nil }, nil
	}

	if expanded, err := homedir.Expand(file); err == nil {
		file = expanded
	}
	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	logger.SetOutput(f)
	logger.SetReportTimestamp(true)
	return f.Close, nil
}
