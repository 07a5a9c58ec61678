package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/rules"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

// Rules commands
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Read and edit user filtering rules",
}

var rulesRefreshCmd = &cobra.Command{
	Use:   "refresh [ID]",
	Short: "Refresh one server's rules, or every server without ID",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if len(args) == 0 {
			return runOp(cmd.Context(), api.OpRefreshAllServers, map[string]any{"force": force})
		}
		return runOp(cmd.Context(), api.OpRefreshServerRules, map[string]any{
			"serverId": args[0],
			"force":    force,
		})
	},
}

var rulesGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a server's rules following the prefer-latest setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, _ := cmd.Flags().GetBool("plain")
		if !plain {
			return runOp(cmd.Context(), api.OpGetServerRules, map[string]any{"serverId": args[0]})
		}

		return withApp(func(a *app) error {
			result, err := a.dispatch(cmd.Context(), api.OpGetServerRules, map[string]any{"serverId": args[0]})
			if err != nil {
				return err
			}
			if err := resultError(result); err != nil {
				return err
			}
			res := result.(*types.SyncResult)
			if res.Warning != "" {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", res.Warning)
			}
			for _, rule := range res.Data.Rules {
				fmt.Fprintln(stdout, rule)
			}
			return nil
		})
	},
}

var rulesSetCmd = &cobra.Command{
	Use:   "set ID --file PATH",
	Short: "Replace a server's rules with the lines of a file, or stdin with -",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return fmt.Errorf("failed to read rules: %w", err)
		}

		return runOp(cmd.Context(), api.OpSetRules, map[string]any{
			"serverId": args[0],
			"rules":    rules.Split(string(data)),
		})
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add ID RULE",
	Short: "Add a rule to a server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(cmd.Context(), api.OpAddRule, map[string]any{"serverId": args[0], "rule": args[1]})
	},
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove ID RULE",
	Short: "Remove a rule from a server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(cmd.Context(), api.OpRemoveRule, map[string]any{"serverId": args[0], "rule": args[1]})
	},
}

var rulesClearCacheCmd = &cobra.Command{
	Use:   "clear-cache [ID]",
	Short: "Drop cached rules for one server, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cacheArgs := map[string]any{}
		if len(args) == 1 {
			cacheArgs["serverId"] = args[0]
		}
		return runOp(cmd.Context(), api.OpClearCache, cacheArgs)
	},
}

func init() {
	rulesCmd.AddCommand(rulesRefreshCmd)
	rulesCmd.AddCommand(rulesGetCmd)
	rulesCmd.AddCommand(rulesSetCmd)
	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesRemoveCmd)
	rulesCmd.AddCommand(rulesClearCacheCmd)

	rulesRefreshCmd.Flags().Bool("force", false, "Ignore fresh cache entries and the auto-sync switch")
	rulesGetCmd.Flags().Bool("plain", false, "Print one rule per line")
	rulesSetCmd.Flags().StringP("file", "f", "", "Rules file, one rule per line, - for stdin")
	_ = rulesSetCmd.MarkFlagRequired("file")
}
