package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/app"
	"github.com/ppiankov/probeplane/internal/deploy"
	"github.com/ppiankov/probeplane/internal/model"
)

var (
	launchInput  deploy.LaunchInput
	launchCanary int
)

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.AddCommand(deployLaunchCmd, deployListCmd)

	f := deployLaunchCmd.Flags()
	f.StringVar(&launchInput.Version, "version", "", "Probe version to roll out (required)")
	f.StringVar(&launchInput.Environment, "env", "", "Target environment (required)")
	f.IntVar(&launchCanary, "canary", 0, "Canary percentage 0-100")
	f.StringVar(&launchInput.OverlayID, "overlay", "", "Environment overlay to test against (default: --env)")
	f.StringVar(&launchInput.Summary, "summary", "", "Change summary")
	_ = deployLaunchCmd.MarkFlagRequired("version")
	_ = deployLaunchCmd.MarkFlagRequired("env")
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deployment operations",
}

var deployLaunchCmd = &cobra.Command{
	Use:   "launch <id-or-slug>",
	Short: "Launch a gated rollout of a probe version",
	Long: "Builds the deployment manifest, runs the self-test and records the\n" +
		"attempt as completed or rolled back. Exits 1 when the self-test fails.",
	Args: cobra.ExactArgs(1),
	RunE: runDeployLaunch,
}

var deployListCmd = &cobra.Command{
	Use:   "list <id-or-slug>",
	Short: "List recent deployments of a probe",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeployList,
}

func runDeployLaunch(cmd *cobra.Command, args []string) error {
	in := launchInput
	if cmd.Flags().Changed("canary") {
		n := launchCanary
		in.CanaryPercent = &n
	}

	var failed bool
	err := withApp(cmd, access.OpDeployLaunch, func(ctx context.Context, a *app.App, actor model.Actor) error {
		d, err := a.Deploy.Launch(ctx, args[0], in, actor)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "deployment %s: %s\n", d.ID, statusColor(string(d.Status)))
		for _, diag := range d.SelfTest.Diagnostics {
			mark := "✓"
			if !diag.Passed {
				mark = "✗"
			}
			fmt.Fprintf(out, "  %s %-20s %s\n", mark, diag.Check, diag.Detail)
		}
		failed = d.Status == model.DeploymentFailed
		return nil
	})
	if err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("self-test failed, deployment rolled back")
	}
	return nil
}

func runDeployList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, access.OpProbeRead, func(ctx context.Context, a *app.App, _ model.Actor) error {
		ds, err := a.Deploy.List(ctx, args[0])
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tVERSION\tENV\tSTATUS\tSTARTED")
		for _, d := range ds {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				d.ID, d.Version, d.Environment, statusColor(string(d.Status)), d.StartedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	})
}
