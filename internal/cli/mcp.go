package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	planemcp "github.com/ppiankov/probeplane/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs probeplane as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: probe_list, probe_get, probe_metrics, probe_trigger_run, probe_deployments.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := planemcp.New(planemcp.Services{
		Registry:  a.Registry,
		Deploy:    a.Deploy,
		Scheduler: a.Scheduler,
		Health:    a.Monitor,
	}, planemcp.Config{
		Version: version,
		Actor:   currentActor(),
	})

	fmt.Fprintln(os.Stderr, "probeplane MCP server running on stdio")
	fmt.Fprintln(os.Stderr)

	err = srv.Run(ctx)
	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		return nil
	}
	return err
}
