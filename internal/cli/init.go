package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/probeplane/internal/config"
)

var (
	initMode  string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "user", "Config location: user (~/.probeplane) or system (/etc/probeplane)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap probeplane configuration",
	Long: `Creates the config directory and a default config.yaml with a SQLite
store and the evidence log next to it.

User mode (default):  writes to ~/.probeplane/
System mode:          writes to /etc/probeplane/ (requires root)`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := initConfigDir()
	if err != nil {
		return err
	}

	cfgPath := filepath.Join(configDir, "config.yaml")
	content, err := defaultConfigYAML(configDir)
	if err != nil {
		return fmt.Errorf("generate default config: %w", err)
	}
	wrote, err := writeIfMissing(cfgPath, content)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if cmd != nil {
		out = cmd.OutOrStdout()
	}

	fmt.Fprintln(out, "probeplane init complete.")
	fmt.Fprintln(out)
	if wrote {
		fmt.Fprintln(out, "Created:")
		fmt.Fprintf(out, "  %s\n", cfgPath)
	} else {
		fmt.Fprintln(out, "Config already exists (use --force to overwrite).")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Verify:")
	fmt.Fprintln(out, "  probeplane doctor")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Start the server:")
	fmt.Fprintln(out, "  probeplane serve")
	return nil
}

// initConfigDir returns the configuration directory based on mode.
func initConfigDir() (string, error) {
	switch initMode {
	case "system":
		return "/etc/probeplane", nil
	case "user", "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".probeplane"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'user' or 'system'", initMode)
	}
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// defaultConfigYAML renders the built-in config with the store and the
// evidence log placed under dir.
func defaultConfigYAML(dir string) (string, error) {
	cfg := config.DefaultConfig()
	cfg.Store.DSN = filepath.Join(dir, "probeplane.db")
	cfg.Audit.Path = filepath.Join(dir, "evidence.jsonl")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	header := "# probeplane configuration.\n" +
		"# alerts and log settings hot-reload while `probeplane serve` runs.\n" +
		"# Add access.grants to restrict who may register, deploy and trigger runs.\n\n"
	return header + string(data), nil
}
