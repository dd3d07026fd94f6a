package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
)

const (
	launchAgentLabel = "io.github.jandubois.rsvctl"
	systemdUnitName  = "rsvctl.service"
)

var launchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Executable}}</string>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.LogDir}}/rsvctl.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogDir}}/rsvctl.log</string>
</dict>
</plist>
`

var systemdUnit = `[Unit]
Description=rsvctl probe scheduler
After=network-online.target

[Service]
ExecStart={{.Executable}}{{range .Args}} {{.}}{{end}}
Restart=on-failure
RestartSec=10

[Install]
WantedBy=default.target
`

type serviceData struct {
	Label      string
	Executable string
	Args       []string
	LogDir     string
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the scheduler as a user service (launchd or systemd)",
	Long: `Install "rsvctl serve" as a service that starts on login and keeps running
in the background. On macOS a LaunchAgent is written to ~/Library/LaunchAgents,
on Linux a systemd user unit to ~/.config/systemd/user.

The installation root, settings file and database given to install are passed
on to the service.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the scheduler service",
	Args:  cobra.NoArgs,
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)

	installCmd.Flags().Bool("dry-run", false, "Print the service file instead of installing it")
}

// serveArgs returns the arguments the service passes to rsvctl.
func serveArgs(cmd *cobra.Command) ([]string, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	flag, _ := cmd.Flags().GetString("vdt-location")
	root, err := settings.ResolveInstallRoot(flag)
	if err != nil {
		return nil, err
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	args := []string{"serve", "--vdt-location", root}
	for _, name := range []string{"config", "database"} {
		value, _ := cmd.Flags().GetString(name)
		if value == "" {
			continue
		}
		abs, err := filepath.Abs(value)
		if err != nil {
			return nil, err
		}
		args = append(args, "--"+name, abs)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		args = append(args, "--log-level", level)
	}
	return args, nil
}

func renderService(w io.Writer, text string, data serviceData) error {
	tmpl, err := template.New("service").Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse service template: %w", err)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render service file: %w", err)
	}
	return nil
}

// servicePaths returns the service template and file path for the current OS.
func servicePaths(homeDir string) (text, path, logDir string, err error) {
	switch runtime.GOOS {
	case "darwin":
		path = filepath.Join(homeDir, "Library", "LaunchAgents", launchAgentLabel+".plist")
		logDir = filepath.Join(homeDir, "Library", "Logs", "rsvctl")
		return launchAgentPlist, path, logDir, nil
	case "linux":
		path = filepath.Join(homeDir, ".config", "systemd", "user", systemdUnitName)
		return systemdUnit, path, "", nil
	default:
		return "", "", "", fmt.Errorf("install is not supported on %s", runtime.GOOS)
	}
}

func runInstall(cmd *cobra.Command, args []string) error {
	svcArgs, err := serveArgs(cmd)
	if err != nil {
		return err
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	text, path, logDir, err := servicePaths(homeDir)
	if err != nil {
		return err
	}

	data := serviceData{
		Label:      launchAgentLabel,
		Executable: executable,
		Args:       svcArgs,
		LogDir:     logDir,
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		return renderService(cmd.OutOrStdout(), text, data)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create service directory: %w", err)
	}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Stop an existing service before replacing its file.
	if _, err := os.Stat(path); err == nil {
		stopService(path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create service file: %w", err)
	}
	if err := renderService(f, text, data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	if err := startService(path); err != nil {
		return fmt.Errorf("failed to load service: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Installed and started %s\n", filepath.Base(path))
	if logDir != "" {
		fmt.Fprintf(out, "Logs: %s/rsvctl.log\n", logDir)
	}
	fmt.Fprintf(out, "Service file: %s\n", path)
	return nil
}

func startService(path string) error {
	if runtime.GOOS == "darwin" {
		return exec.Command("launchctl", "load", path).Run()
	}
	if err := exec.Command("systemctl", "--user", "daemon-reload").Run(); err != nil {
		return err
	}
	return exec.Command("systemctl", "--user", "enable", "--now", systemdUnitName).Run()
}

func stopService(path string) {
	var err error
	if runtime.GOOS == "darwin" {
		err = exec.Command("launchctl", "unload", path).Run()
	} else {
		err = exec.Command("systemctl", "--user", "disable", "--now", systemdUnitName).Run()
	}
	if err != nil {
		slog.Warn("failed to stop service", "path", path, "error", err)
	}
}

func runUninstall(cmd *cobra.Command, args []string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	_, path, _, err := servicePaths(homeDir)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("service is not installed")
	}

	stopService(path)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove service file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	return nil
}
