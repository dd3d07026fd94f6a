package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jandubois/rsvctl/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/jandubois/rsvctl/cmd.Version=..."
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "rsvctl [flags] [all | <probeID> | <metric>]",
	Short: "Control and verify monitoring probes",
	Long: `rsvctl lists, enables, disables and tests the monitoring probes (metrics)
installed under an installation root.

Exactly one of --list, --enable, --disable, --test or --full-test is required.
Probes are selected with --metric or --service and run against --host, which
defaults to the local hostname.`,
	Version:           Version,
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE:              runControl,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("vdt-location", "p", "", "Installation root (or VDT_LOCATION env var)")
	pf.String("config", "", "Settings file (YAML)")
	pf.String("database", "", "Scheduling backend database path (or RSVCTL_DATABASE env var)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("verbose", false, "Verbose output")

	f := rootCmd.Flags()
	f.BoolP("list", "l", false, "List probe information")
	f.BoolP("wide", "w", false, "Wide list display")
	f.Bool("full-width", false, "Do not truncate the probe listing")
	f.StringP("format", "f", "local", "List format (local, brief, long, full, log, out, err)")
	f.String("pattern", "", "Only list metrics whose name matches this regular expression")
	f.Bool("test", false, "Run a probe and print its output")
	f.Bool("full-test", false, "Run a probe once through the scheduling backend")
	f.BoolP("enable", "e", false, "Enable probe")
	f.BoolP("disable", "d", false, "Disable probe")
	f.String("user", "", "User recorded as owner of enabled probes")
	f.String("metric", "", "Metric to act on (e.g. org.osg.general.ping-host)")
	f.String("service", "", "Service type to act on (e.g. OSG-CE)")
	f.String("host", "", "Host FQDN, optionally with port, the probe runs against")
}

// loadSettings reads the settings file named by --config.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("log-level")
	if name == "" {
		name = settings.LogLevel
	}
	level, err := parseLogLevel(name)
	if err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && level > slog.LevelInfo {
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	slog.Info("executing rsvctl", "args", os.Args[1:])
	return nil
}

func parseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q (use debug, info, warn or error)", name)
	}
	return level, nil
}

func getDatabasePath(cmd *cobra.Command, settings *config.Settings, root string) (string, error) {
	path, _ := cmd.Flags().GetString("database")
	return settings.DatabasePath(path, root)
}
