package main

import (
	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Settings commands
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change sync settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(cmd.Context(), api.OpGetSettings, nil)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings; flags not given keep their value",
	Example: `  burrow settings set --auto-sync=false
  burrow settings set --cache-ttl 15 --prefer-latest`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			current, err := a.dispatch(cmd.Context(), api.OpGetSettings, nil)
			if err != nil {
				return err
			}
			settings := current.(types.Settings)
			applySettingFlags(cmd.Flags(), &settings)

			saved, err := a.dispatch(cmd.Context(), api.OpSaveSettings, map[string]any{"settings": settings})
			if err != nil {
				return err
			}
			return printResult(saved)
		})
	},
}

// applySettingFlags copies the flags the user set onto settings
func applySettingFlags(flags *pflag.FlagSet, settings *types.Settings) {
	if flags.Changed("auto-sync") {
		settings.AutoSync, _ = flags.GetBool("auto-sync")
	}
	if flags.Changed("prefer-latest") {
		settings.PreferLatest, _ = flags.GetBool("prefer-latest")
	}
	if flags.Changed("cache-ttl") {
		settings.CacheTTLMinutes, _ = flags.GetInt("cache-ttl")
	}
	if flags.Changed("sync-interval") {
		settings.SyncIntervalMinutes, _ = flags.GetInt("sync-interval")
	}
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	flags := settingsSetCmd.Flags()
	flags.Bool("auto-sync", true, "Refresh every server in the background")
	flags.Bool("prefer-latest", false, "Always ask the appliance before using the cache")
	flags.Int("cache-ttl", 0, "Minutes a cached rule list stays fresh")
	flags.Int("sync-interval", 0, "Minutes between background sync passes")
}
