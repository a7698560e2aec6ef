package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/plib/internal/config"
)

func init() {
	rootCmd.AddCommand(providersCmd)
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show configured metadata sources in execution order",
	Long: `Show every configured metadata source in the order it runs. Sources run
in ascending priority, so the highest priority writes last and wins.

Sources are configured in the global config file (` + "`providers:`" + ` list).`,
	Args: cobra.NoArgs,
	RunE: runProviders,
}

// ProviderInfo describes one registry entry.
type ProviderInfo struct {
	Name     string `json:"name"`
	Key      string `json:"key"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
}

func runProviders(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	var infos []ProviderInfo
	for _, s := range a.registry.All() {
		infos = append(infos, ProviderInfo{Name: s.Name(), Key: s.Key, Enabled: s.Enabled, Priority: s.Priority})
	}

	if humanOutput {
		outputHuman("Config: %s\n\n", config.GlobalConfigPath())
		for _, p := range infos {
			state := "enabled"
			if !p.Enabled {
				state = "disabled"
			}
			outputHuman("%4d  %-18s %-16s %s\n", p.Priority, p.Key, p.Name, state)
		}
	} else {
		if infos == nil {
			infos = []ProviderInfo{}
		}
		outputJSON(infos)
	}
	return nil
}
