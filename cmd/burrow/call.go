package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call OPERATION [ARGS-JSON]",
	Short: "Invoke any API operation against the local database",
	Example: `  burrow call getQueryLog '{"serverId":"...","limit":50}'
  burrow call checkHost '{"serverId":"...","name":"ads.example"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opArgs json.RawMessage
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("arguments are not valid JSON")
			}
			opArgs = json.RawMessage(args[1])
		}
		return runOp(cmd.Context(), args[0], opArgs)
	},
}

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List the API operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			for _, op := range a.service.Operations() {
				fmt.Fprintln(stdout, op)
			}
			return nil
		})
	},
}
