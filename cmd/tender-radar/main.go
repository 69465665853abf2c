// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Command tender-radar fetches active Mercado Público procurement
// listings, scores them against a keyword and amount rule set, and
// publishes ranked opportunity artifacts.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/tender-radar/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

var cfgFile string

// loadedSecrets holds key/value pairs from the .secrets/ directory.
var loadedSecrets map[string]string

var rootCmd = &cobra.Command{
	Use:   "tender-radar",
	Short: "Triage and scoring for Mercado Público procurement listings",
	Long: `tender-radar pulls active tender listings from Mercado Público,
enriches the most promising ones with per-tender detail, scores every
item against a configurable keyword and amount rule set, and writes
ranked JSON artifacts plus a persistent sighting registry.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		loadedSecrets, err = secrets.Load(".secrets/")
		if err != nil {
			return fmt.Errorf("loading secrets: %w", err)
		}
		if len(loadedSecrets) > 0 {
			keys := make([]string, 0, len(loadedSecrets))
			for k := range loadedSecrets {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tender-radar.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "tender-radar"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("tender-radar")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TENDER_RADAR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// secretDefault resolves a credential: an explicit flag value wins,
// then the environment, then the .secrets/ directory.
func secretDefault(key, fallback string, envVars ...string) string {
	if fallback != "" {
		return fallback
	}
	return secrets.Value(loadedSecrets, key, envVars...)
}

// stringSetting resolves a string option: flag, then config file, then default.
func stringSetting(cmd *cobra.Command, flag, key, fallback string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

func intSetting(cmd *cobra.Command, flag, key string, fallback int) int {
	if v, _ := cmd.Flags().GetInt(flag); v != 0 {
		return v
	}
	if v := viper.GetInt(key); v != 0 {
		return v
	}
	return fallback
}

func durationSetting(cmd *cobra.Command, flag, key string, fallback time.Duration) time.Duration {
	if v, _ := cmd.Flags().GetDuration(flag); v != 0 {
		return v
	}
	if v := viper.GetDuration(key); v != 0 {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
