package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

// Server commands
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage AdGuard Home servers",
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		showPasswords, _ := cmd.Flags().GetBool("show-passwords")
		return withApp(func(a *app) error {
			result, err := a.dispatch(cmd.Context(), api.OpGetServers, nil)
			if err != nil {
				return err
			}
			servers := result.([]*types.Server)
			if !showPasswords {
				servers = redactPasswords(servers)
			}
			return printResult(servers)
		})
	},
}

var serverAddCmd = &cobra.Command{
	Use:   "add --name NAME --host URL --username USER",
	Short: "Add a server",
	Long: `Add an AdGuard Home server. The password is encrypted before it is
stored. Use --password-stdin to keep it out of the shell history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		host, _ := cmd.Flags().GetString("host")
		username, _ := cmd.Flags().GetString("username")
		password, err := passwordFromFlags(cmd)
		if err != nil {
			return err
		}

		return withApp(func(a *app) error {
			result, err := a.dispatch(cmd.Context(), api.OpSaveServer, map[string]any{
				"server": &types.Server{Name: name, Host: host, Username: username, Password: password},
			})
			if err != nil {
				return err
			}
			return printResult(redactPasswords([]*types.Server{result.(*types.Server)})[0])
		})
	},
}

var serverUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change a server's name, host or credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			srv, err := a.servers.Get(args[0])
			if err != nil {
				return errors.New(api.Message(err))
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				srv.Name, _ = flags.GetString("name")
			}
			if flags.Changed("host") {
				srv.Host, _ = flags.GetString("host")
			}
			if flags.Changed("username") {
				srv.Username, _ = flags.GetString("username")
			}
			if flags.Changed("password") || flags.Changed("password-stdin") {
				if srv.Password, err = passwordFromFlags(cmd); err != nil {
					return err
				}
			}

			result, err := a.dispatch(cmd.Context(), api.OpSaveServer, map[string]any{"server": srv})
			if err != nil {
				return err
			}
			return printResult(redactPasswords([]*types.Server{result.(*types.Server)})[0])
		})
	},
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a server and its cached rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			result, err := a.dispatch(cmd.Context(), api.OpDeleteServer, map[string]any{"id": args[0]})
			if err != nil {
				return err
			}
			if removed, _ := result.(bool); !removed {
				return fmt.Errorf("server %s not found", args[0])
			}
			fmt.Fprintf(stdout, "✓ Server %s removed\n", args[0])
			return nil
		})
	},
}

var serverTestCmd = &cobra.Command{
	Use:   "test [ID]",
	Short: "Test the connection to a saved server or to --host",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			conn := map[string]string{}
			if len(args) == 1 {
				srv, err := a.servers.Get(args[0])
				if err != nil {
					return errors.New(api.Message(err))
				}
				conn["host"], conn["username"], conn["password"] = srv.Host, srv.Username, srv.Password
			} else {
				password, err := passwordFromFlags(cmd)
				if err != nil {
					return err
				}
				conn["host"], _ = cmd.Flags().GetString("host")
				conn["username"], _ = cmd.Flags().GetString("username")
				conn["password"] = password
			}

			result, err := a.dispatch(cmd.Context(), api.OpTestConnection, conn)
			if err != nil {
				return err
			}
			if err := printResult(result); err != nil {
				return err
			}
			return resultError(result)
		})
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status ID",
	Short: "Show an appliance's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(cmd.Context(), api.OpGetStatus, map[string]any{"serverId": args[0]})
	},
}

var serverProtectionCmd = &cobra.Command{
	Use:       "protection ID on|off",
	Short:     "Turn DNS protection on or off",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("state must be 'on' or 'off'")
		}
		return runOp(cmd.Context(), api.OpToggleProtection, map[string]any{
			"serverId": args[0],
			"enabled":  enabled,
		})
	},
}

var serverLookupCmd = &cobra.Command{
	Use:   "lookup ID NAME",
	Short: "Resolve NAME through the appliance's DNS listener",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		qtype, _ := cmd.Flags().GetString("type")
		return runOp(cmd.Context(), api.OpDNSLookup, map[string]any{
			"serverId": args[0],
			"name":     args[1],
			"type":     qtype,
		})
	},
}

var serverCheckCmd = &cobra.Command{
	Use:   "check ID NAME",
	Short: "Show which filtering rule matches NAME",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(cmd.Context(), api.OpCheckHost, map[string]any{"serverId": args[0], "name": args[1]})
	},
}

// passwordFromFlags reads --password or, with --password-stdin, the first
// line of standard input
func passwordFromFlags(cmd *cobra.Command) (string, error) {
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	if !fromStdin {
		password, _ := cmd.Flags().GetString("password")
		return password, nil
	}
	return readPassword(cmd.InOrStdin())
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func addCredentialFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Control API base URL, e.g. https://10.0.0.1:3000")
	cmd.Flags().String("username", "", "AdGuard Home username")
	cmd.Flags().String("password", os.Getenv("BURROW_PASSWORD"), "AdGuard Home password")
	cmd.Flags().Bool("password-stdin", false, "Read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func init() {
	serverCmd.AddCommand(serverListCmd)
	serverCmd.AddCommand(serverAddCmd)
	serverCmd.AddCommand(serverUpdateCmd)
	serverCmd.AddCommand(serverRemoveCmd)
	serverCmd.AddCommand(serverTestCmd)
	serverCmd.AddCommand(serverStatusCmd)
	serverCmd.AddCommand(serverProtectionCmd)
	serverCmd.AddCommand(serverLookupCmd)
	serverCmd.AddCommand(serverCheckCmd)

	serverListCmd.Flags().Bool("show-passwords", false, "Include decrypted passwords")

	addCredentialFlags(serverAddCmd)
	serverAddCmd.Flags().String("name", "", "Display name")
	_ = serverAddCmd.MarkFlagRequired("name")
	_ = serverAddCmd.MarkFlagRequired("host")
	_ = serverAddCmd.MarkFlagRequired("username")

	addCredentialFlags(serverUpdateCmd)
	serverUpdateCmd.Flags().String("name", "", "Display name")

	addCredentialFlags(serverTestCmd)

	serverLookupCmd.Flags().StringP("type", "t", "A", "Query type, e.g. A, AAAA, HTTPS")
}
