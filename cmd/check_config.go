package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(cfg.Upstream.Providers))
		for name := range cfg.Upstream.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "config OK")
		fmt.Fprintf(out, "  listen:     %s\n", cfg.Server.Addr())
		fmt.Fprintf(out, "  providers:  %v (default %s)\n", names, cfg.Upstream.DefaultProvider)
		fmt.Fprintf(out, "  embedding:  %s\n", cfg.Embedding.Provider)
		fmt.Fprintf(out, "  semantic:   threshold %.3f over %d turns\n", cfg.Policy.Semantic.Threshold, cfg.Policy.Semantic.Turns)
		fmt.Fprintf(out, "  fuzzy:      threshold %.3f over %d turns\n", cfg.Policy.Fuzzy.Threshold, cfg.Policy.Fuzzy.Turns)
		fmt.Fprintf(out, "  ceiling:    $%.2f per session\n", cfg.Policy.Throttle.CeilingUSD)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}
