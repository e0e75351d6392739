package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/app"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/schedule"
)

var (
	schedType       string
	schedExpression string
	schedPriority   string
	schedControls   []string

	runTrigger  string
	runControls []string
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleCreateCmd, scheduleListCmd, scheduleRunCmd)

	f := scheduleCreateCmd.Flags()
	f.StringVar(&schedType, "type", "cron", "Schedule type (cron|event|adhoc)")
	f.StringVar(&schedExpression, "expression", "", "Cron expression (cron type, default from config)")
	f.StringVar(&schedPriority, "priority", "", "Priority (low|normal|high|urgent)")
	f.StringSliceVar(&schedControls, "control", nil, "Control ID covered by the schedule (repeatable)")

	rf := scheduleRunCmd.Flags()
	rf.StringVar(&runTrigger, "trigger", "manual", "Trigger label recorded on the run")
	rf.StringSliceVar(&runControls, "control", nil, "Control ID to collect (repeatable)")
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Collection schedule operations",
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create <id-or-slug>",
	Short: "Create a collection schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleCreate,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list <id-or-slug>",
	Short: "List schedules of a probe",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleList,
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run <id-or-slug>",
	Short: "Trigger an ad-hoc evidence collection run",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRun,
}

func runScheduleCreate(cmd *cobra.Command, args []string) error {
	in := schedule.CreateInput{
		Type:       model.ScheduleType(schedType),
		Expression: schedExpression,
		Priority:   model.Priority(schedPriority),
		Controls:   schedControls,
	}
	return withApp(cmd, access.OpScheduleWrite, func(ctx context.Context, a *app.App, actor model.Actor) error {
		sc, err := a.Scheduler.Create(ctx, args[0], in, actor)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sc)
	})
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, access.OpProbeRead, func(ctx context.Context, a *app.App, _ model.Actor) error {
		scs, err := a.Scheduler.List(ctx, args[0])
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tEXPRESSION\tPRIORITY\tSTATUS\tNEXT RUN\tCONTROLS")
		for _, sc := range scs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				sc.ID, sc.Type, orDash(sc.Expression), sc.Priority, statusColor(string(sc.Status)),
				sc.NextRunAt.Format(time.RFC3339), strings.Join(sc.Controls, ","))
		}
		return tw.Flush()
	})
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	in := schedule.TriggerInput{Trigger: runTrigger}
	if len(runControls) > 0 {
		in.Context = map[string]any{"controls": runControls}
	}
	return withApp(cmd, access.OpRunTrigger, func(ctx context.Context, a *app.App, actor model.Actor) error {
		receipt, err := a.Scheduler.TriggerRun(ctx, args[0], in, actor)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s %s, next window %s\n",
			receipt.RunID, statusColor(receipt.Status), receipt.NextRunAt.Format(time.RFC3339))
		return nil
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
