package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Encrypt stored plaintext passwords",
	Long: `Encrypt every password that was stored before credentials were
encrypted at rest. Passwords are also migrated lazily on first read and
when "burrow serve" starts; this command does it eagerly and reports the
result.

A backup of the database is written first unless --dry-run is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backupPath, _ := cmd.Flags().GetString("backup")
		logger := log.WithComponent("migrate")

		return withApp(func(a *app) error {
			if !dryRun {
				if backupPath == "" {
					backupPath = defaultBackupPath(a.cfg.DataDir, time.Now())
				}
				if err := a.store.Backup(backupPath); err != nil {
					return fmt.Errorf("failed to create backup: %w", err)
				}
				logger.Info().Str("path", backupPath).Msg("Backup created")
			}

			report, err := a.servers.MigrateAll(dryRun)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if err := printResult(report); err != nil {
				return err
			}
			if len(report.FailedWrites) > 0 {
				return fmt.Errorf("%d servers could not be written", len(report.FailedWrites))
			}
			return nil
		})
	},
}

func defaultBackupPath(dataDir string, now time.Time) string {
	return filepath.Join(dataDir, "backups", "burrow-"+now.UTC().Format("20060102T150405Z")+".db")
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
	migrateCmd.Flags().String("backup", "", "Backup path (default: <data-dir>/backups/burrow-<time>.db)")
}
