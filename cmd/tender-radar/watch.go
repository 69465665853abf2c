package main

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultWatchEvery = 6 * time.Hour

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run scan on a fixed schedule",
	Long: `Watch runs a full scan immediately and then repeats it on a fixed
interval. A failed run is logged and the schedule keeps going; use it
for an always-on radar on a small server.`,
	RunE: runWatch,
}

func init() {
	addScanFlags(watchCmd)
	watchCmd.Flags().Duration("every", 0, "interval between scans (default 6h)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	every, _ := cmd.Flags().GetDuration("every")
	if every == 0 {
		every = viper.GetDuration("watch.every")
	}
	if every == 0 {
		every = defaultWatchEvery
	}

	cfg := scanConfig(cmd)
	runOnce := func() {
		if err := executeScan(cfg); err != nil {
			log.Printf("[watch] scan failed: %v", err)
		}
	}

	log.Printf("[watch] scanning every %s", every)
	runOnce()

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", every), runOnce); err != nil {
		return fmt.Errorf("scheduling scans: %w", err)
	}
	c.Run()
	return nil
}
