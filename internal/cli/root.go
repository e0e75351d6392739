package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/app"
	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/model"
)

var (
	configPath string
	actorID    string
	actorEmail string
)

var rootCmd = &cobra.Command{
	Use:   "probeplane",
	Short: "Control plane for compliance evidence probes",
	Long: "Registers evidence probes, gates their rollouts behind a self-test,\n" +
		"schedules collection runs and tracks probe health from heartbeats.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.probeplane/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "", "Actor ID recorded on writes (default: current OS user)")
	rootCmd.PersistentFlags().StringVar(&actorEmail, "actor-email", "", "Actor email recorded on writes")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads the config and opens the control plane for one command.
// Callers must Close the returned app so queued events reach their sinks.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	a, err := app.Open(ctx, *cfg, path, cfg.Log.NewLogger(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("open control plane: %w", err)
	}
	return a, nil
}

// withApp opens the app, checks op for the current actor and runs fn.
func withApp(cmd *cobra.Command, op access.Operation, fn func(ctx context.Context, a *app.App, actor model.Actor) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}

	actor := currentActor()
	runErr := access.NewPolicy(a.Config.Access.Grants).Authorize(actor, op)
	if runErr == nil {
		runErr = fn(ctx, a, actor)
	}
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func currentActor() model.Actor {
	a := model.Actor{ID: actorID, Email: actorEmail}
	if a.ID == "" && a.Email == "" {
		if u, err := user.Current(); err == nil {
			a.ID = u.Username
		}
	}
	return a
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusColor renders probe, deployment and heartbeat states.
func statusColor(status string) string {
	switch status {
	case "active", "completed", "operational", "accepted":
		return color.GreenString(status)
	case "degraded", "draft", "pending", "paused":
		return color.YellowString(status)
	case "failed", "outage", "deprecated":
		return color.RedString(status)
	default:
		return status
	}
}
