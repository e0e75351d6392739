package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/app"
	"github.com/ppiankov/probeplane/internal/health"
	"github.com/ppiankov/probeplane/internal/model"
)

var (
	hbStatus    string
	hbLatency   int
	hbErrorCode string
)

func init() {
	rootCmd.AddCommand(heartbeatCmd)
	heartbeatCmd.Flags().StringVar(&hbStatus, "status", "operational", "Reported status (operational|degraded|outage; unknown values count as operational)")
	heartbeatCmd.Flags().IntVar(&hbLatency, "latency", 0, "Collection latency in milliseconds")
	heartbeatCmd.Flags().StringVar(&hbErrorCode, "error-code", "", "Last error code reported by the probe")
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat <id-or-slug>",
	Short: "Record a heartbeat for a probe",
	Long:  "Records a heartbeat as the probe would and prints the updated metric summary.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeartbeat,
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	in := health.HeartbeatInput{ProbeID: args[0], Status: hbStatus}
	if cmd.Flags().Changed("latency") {
		n := hbLatency
		in.LatencyMs = &n
	}
	if hbErrorCode != "" {
		code := hbErrorCode
		in.ErrorCode = &code
	}
	return withApp(cmd, access.OpHeartbeatRecord, func(ctx context.Context, a *app.App, _ model.Actor) error {
		m, err := a.Monitor.RecordHeartbeat(ctx, in)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), m)
	})
}
