package main

import (
	"fmt"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/shravan/internal/cache"
	"github.com/dgnsrekt/shravan/tts"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the audio cache",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		m, cfg, err := openCache()
		if err != nil {
			return err
		}
		defer m.Close() //nolint:errcheck

		disk := m.Stats().Disk
		fmt.Println("Cache directory:", m.Dir())
		fmt.Printf("Disk tier: %s entries, %s of %s\n",
			humanize.Comma(int64(disk.Entries)),
			humanize.IBytes(uint64(disk.Bytes)),    //nolint:gosec
			humanize.IBytes(uint64(disk.MaxBytes))) //nolint:gosec
		if cfg.Cache.RemoteEndpoint != "" {
			fmt.Println("Remote tier:", cfg.Cache.RemoteEndpoint)
		}
		return nil
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove expired entries from the disk tier",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		m, _, err := openCache()
		if err != nil {
			return err
		}
		defer m.Close() //nolint:errcheck

		removed := m.Clean()
		fmt.Printf("Removed %s expired entries\n", humanize.Comma(int64(removed)))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached line",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		m, _, err := openCache()
		if err != nil {
			return err
		}
		defer m.Close() //nolint:errcheck

		if err := m.Clear(); err != nil {
			return fmt.Errorf("unable to clear cache: %w", err)
		}
		fmt.Println("Cleared the audio cache")
		return nil
	},
}

// openCache builds the tiered cache from the loaded configuration.
// Cache maintenance still works when no provider is configured, so
// configuration errors only block on the sections the cache uses.
func openCache() (*cache.Manager, tts.Config, error) {
	cfg, err := tts.LoadConfig()
	if err != nil && !tts.IsConfiguration(err) {
		return nil, cfg, err
	}

	m, err := cache.NewManager(cacheConfig(cfg.Cache))
	if err != nil {
		return nil, cfg, fmt.Errorf("unable to open cache: %w", err)
	}
	return m, cfg, nil
}

func init() {
	cacheCmd.AddCommand(cacheCleanCmd, cacheClearCmd)
}
