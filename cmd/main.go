// Package main provides the sentinel command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mandyss10/Sentinel/internal/config"
)

var (
	cfgFile   string
	debugFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel - LLM interception proxy",
	Long: `Sentinel sits between an OpenAI-compatible client and its upstream chat API.

Per session it blocks semantic and repetitive loops before they reach the
model, redacts leaked secrets from completions, and throttles runaway spend.

Quick start:
  export OPENAI_API_KEY=sk-...
  sentinel serve
  curl -H 'X-Sentinel-Session: demo' localhost:3000/v1/chat/completions -d @req.json

Configuration:
  --config points at a YAML file; without it built-in defaults are used.
  .env and ~/.config/sentinel/.env are loaded first, and ${VAR:-default}
  references in the YAML are expanded.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads env files, then the YAML config or the defaults.
func loadConfig(path string) (*config.Config, error) {
	config.LoadEnvFiles()
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.LoadFromFile(path)
}
