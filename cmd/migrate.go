package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jandubois/rsvctl/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run scheduling backend database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("down", false, "Roll back all migrations")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	// The installation root only matters for the default database location.
	flag, _ := cmd.Flags().GetString("vdt-location")
	root, rootErr := settings.ResolveInstallRoot(flag)
	dbPath, err := getDatabasePath(cmd, settings, root)
	if err != nil {
		if rootErr != nil {
			return rootErr
		}
		return err
	}
	down, _ := cmd.Flags().GetBool("down")

	if down {
		slog.Info("rolling back all migrations", "database", dbPath)
		if err := db.RollbackMigrations(dbPath); err != nil {
			return err
		}
		slog.Info("migrations rolled back")
	} else {
		slog.Info("running migrations", "database", dbPath)
		if err := db.RunMigrations(dbPath); err != nil {
			return err
		}
		slog.Info("migrations complete")
	}

	return nil
}
