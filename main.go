// Package main provides the entry point for the Shravan CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/shravan/internal/cache"
	"github.com/dgnsrekt/shravan/tts"
	"github.com/dgnsrekt/shravan/tts/audio"
	"github.com/dgnsrekt/shravan/tts/synth"
	ttssync "github.com/dgnsrekt/shravan/tts/sync"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	language   string
	fromLine   int
	speakText  string
	deviceKind string

	rootCmd = &cobra.Command{
		Use:   "shravan [FILE]",
		Short: "Read verse files aloud, line by line",
		Long: paragraph(
			fmt.Sprintf("\nRead verse files aloud, %s. Each line is synthesized, cached and spoken while the current word is tracked on screen.", keyword("line by line")),
		),
		Example:          paragraph("shravan ramayana.txt\nshravan --from 12 gita.txt\ncat verse.txt | shravan\nshravan -t \"रामो राजमणिः\""),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		RunE:             execute,
	}
)

func execute(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config: %w", err)
		}
	}

	cfg, err := tts.LoadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("language") {
		cfg.Language = language
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	tts.WatchConfig(logger)

	lines, err := readDocument(args)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return errors.New("no verse lines to read")
	}

	return runPlayback(cfg, lines)
}

// readDocument collects the verse lines to read: the --text flag, a
// file argument, or piped stdin. Blank lines are dropped.
func readDocument(args []string) ([]string, error) {
	if speakText != "" {
		return []string{speakText}, nil
	}

	var r io.Reader
	switch {
	case len(args) == 1 && args[0] != "-":
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("unable to open file: %w", err)
		}
		defer f.Close() //nolint:errcheck
		r = f
	default:
		piped, err := stdinIsPipe()
		if err != nil {
			return nil, err
		}
		if !piped && len(args) == 0 {
			return nil, errors.New("missing verse source: pass a file or pipe text")
		}
		r = os.Stdin
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read from reader: %w", err)
	}
	return splitLines(string(data)), nil
}

func splitLines(s string) []string {
	var lines []string
	for _, raw := range strings.Split(s, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// runPlayback assembles the engine and reads the document from the
// starting line to the end, advancing when each line's OnEnd arrives.
func runPlayback(cfg tts.Config, lines []string) error {
	store, err := cache.NewManager(cacheConfig(cfg.Cache))
	if err != nil {
		return fmt.Errorf("unable to open cache: %w", err)
	}

	provider, err := synth.New(cfg.Provider, logger)
	if err != nil {
		return err
	}

	device, err := buildDevice(cfg.Playback)
	if err != nil {
		return err
	}

	engine, err := tts.NewEngine(cfg, tts.ControllerDeps{
		Synth:   provider,
		Device:  device,
		Decoder: audio.NewDecoder(device.SampleRate(), device.ChannelCount()),
		Timing:  ttssync.Tracker{},
		Store:   store,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer engine.Dispose()

	engine.SetDocument(lines)

	status := newStatusLine(os.Stdout, len(lines))
	ended := make(chan struct{}, 1)
	engine.SetCallbacks(tts.Callbacks{
		OnStart: func(line string) {
			index, _ := engine.Position()
			status.begin(index, line, engine.Tokens())
		},
		OnWordChange: status.wordAt,
		OnError:      status.fail,
		OnEnd: func(string) {
			status.end()
			ended <- struct{}{}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := 0
	if fromLine > 0 {
		start = fromLine - 1
	}
	line := engine.SeekLine(start)
	for {
		if err := engine.PlayCurrent(); err != nil {
			return err
		}
		select {
		case <-ended:
		case <-ctx.Done():
			engine.Stop()
			<-ended
			return nil
		}
		line++
		if line >= engine.Lines() {
			return nil
		}
		engine.SeekLine(line)
	}
}

// buildDevice selects the audio output for this run. The mock device
// reads a document silently in real time, useful on machines without
// an audio backend.
func buildDevice(cfg tts.PlaybackConfig) (tts.Device, error) {
	switch deviceKind {
	case "", "oto":
		return audio.NewDevice(cfg, logger), nil
	case "mock":
		return audio.NewMockDevice(cfg), nil
	default:
		return nil, fmt.Errorf("unknown audio device %q (expected oto or mock)", deviceKind)
	}
}

// cacheConfig maps the engine cache section onto the tiered cache.
func cacheConfig(c tts.CacheConfig) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Dir = c.Dir
	cfg.Name = c.Name
	cfg.Version = c.Version
	cfg.MemoryMaxEntries = c.MemoryMaxEntries
	cfg.MemoryMaxBytes = c.MemoryMaxBytes
	cfg.DiskMaxBytes = c.DiskMaxBytes
	cfg.RemoteEndpoint = c.RemoteEndpoint
	cfg.RemoteTimeout = c.MetadataTimeout
	return cfg
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&language, "language", "l", "", "language code for synthesis (default from config)")
	rootCmd.Flags().IntVar(&fromLine, "from", 1, "1-based line to start reading at")
	rootCmd.Flags().StringVarP(&speakText, "text", "t", "", "speak a single line of text and exit")
	rootCmd.Flags().StringVar(&deviceKind, "device", "oto", "audio output: oto or mock (silent dry run)")

	rootCmd.AddCommand(configCmd, manCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	_ = godotenv.Load()

	scope := gap.NewScope(gap.User, "shravan")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "shravan")}, dirs...)
	}

	if c := os.Getenv("SHRAVAN_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("shravan")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("shravan")
	viper.AutomaticEnv()

	tts.SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "shravan.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
