package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/app"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/registry"
)

var (
	regInput    registry.RegisterInput
	regInterval int
	regOverlays string

	listStatus    string
	listFramework []string
	listOwner     string
	listSearch    string
	listLimit     int
	listOffset    int
	listJSON      bool

	eventsLimit int
)

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.AddCommand(probeRegisterCmd, probeListCmd, probeGetCmd, probeEventsCmd)

	f := probeRegisterCmd.Flags()
	f.StringVar(&regInput.Name, "name", "", "Probe display name (required)")
	f.StringVar(&regInput.Description, "description", "", "Free-form description")
	f.StringVar(&regInput.OwnerEmail, "owner", "", "Owner email (required)")
	f.StringVar(&regInput.OwnerTeam, "team", "", "Owning team")
	f.StringSliceVar(&regInput.FrameworkBindings, "framework", nil, "Compliance framework binding (repeatable, required)")
	f.StringSliceVar(&regInput.Tags, "tag", nil, "Tag (repeatable)")
	f.StringVar(&regInput.SDKVersionMin, "sdk-min", "", "Minimum SDK version (default from config)")
	f.StringVar(&regInput.SDKVersionTarget, "sdk-target", "", "Target SDK version (default from config)")
	f.IntVar(&regInterval, "interval", 0, "Heartbeat interval in seconds (default from config)")
	f.StringSliceVar(&regInput.AlertChannels, "alert-channel", nil, "Alert channel (repeatable)")
	f.StringVar(&regOverlays, "overlays", "", "YAML or JSON file with environment overlays")
	_ = probeRegisterCmd.MarkFlagRequired("name")
	_ = probeRegisterCmd.MarkFlagRequired("owner")

	lf := probeListCmd.Flags()
	lf.StringVar(&listStatus, "status", "", "Filter by status (draft|active|deprecated)")
	lf.StringSliceVar(&listFramework, "framework", nil, "Filter by framework binding (repeatable, any match)")
	lf.StringVar(&listOwner, "owner", "", "Filter by owner email")
	lf.StringVar(&listSearch, "search", "", "Substring match on name, slug or description")
	lf.IntVar(&listLimit, "limit", 0, "Page size (default from config)")
	lf.IntVar(&listOffset, "offset", 0, "Page offset")
	lf.BoolVar(&listJSON, "json", false, "Print the raw page as JSON")

	probeEventsCmd.Flags().IntVarP(&eventsLimit, "lines", "n", 50, "Number of recent events to show")
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe registry operations",
}

var probeRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new probe",
	Long:  "Validates the definition, merges environment overlays over the platform\ndefaults and stores the probe in draft status.",
	Args:  cobra.NoArgs,
	RunE:  runProbeRegister,
}

var probeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered probes",
	Args:  cobra.NoArgs,
	RunE:  runProbeList,
}

var probeGetCmd = &cobra.Command{
	Use:   "get <id-or-slug>",
	Short: "Show a probe with its latest deployments and schedules",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbeGet,
}

var probeEventsCmd = &cobra.Command{
	Use:   "events <id-or-slug>",
	Short: "Show the probe event log, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbeEvents,
}

func runProbeRegister(cmd *cobra.Command, args []string) error {
	in := regInput
	if cmd.Flags().Changed("interval") {
		n := regInterval
		in.HeartbeatIntervalSeconds = &n
	}
	if regOverlays != "" {
		overlays, err := readOverlays(regOverlays)
		if err != nil {
			return err
		}
		in.EnvironmentOverlays = overlays
	}

	return withApp(cmd, access.OpProbeRegister, func(ctx context.Context, a *app.App, actor model.Actor) error {
		p, err := a.Registry.Register(ctx, in, actor)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	})
}

// readOverlays parses an environment overlay file. YAML is a superset of
// JSON so both formats decode the same way.
func readOverlays(path string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overlays: %w", err)
	}
	var overlays map[string]map[string]any
	if err := yaml.Unmarshal(data, &overlays); err != nil {
		return nil, fmt.Errorf("parse overlays %s: %w", path, err)
	}
	return overlays, nil
}

func runProbeList(cmd *cobra.Command, args []string) error {
	filter := registry.ListFilter{
		Status:       model.ProbeStatus(listStatus),
		FrameworkIDs: listFramework,
		Owner:        listOwner,
		Search:       listSearch,
	}
	page := model.Page{Limit: listLimit, Offset: listOffset}

	return withApp(cmd, access.OpProbeRead, func(ctx context.Context, a *app.App, _ model.Actor) error {
		res, err := a.Registry.List(ctx, filter, page)
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SLUG\tNAME\tSTATUS\tOWNER\tFRAMEWORKS")
		for _, p := range res.Data {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				p.Slug, p.Name, statusColor(string(p.Status)), p.OwnerEmail, strings.Join(p.FrameworkBindings, ","))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		pg := res.Pagination
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d (offset %d)\n", len(res.Data), pg.Total, pg.Offset)
		return nil
	})
}

func runProbeGet(cmd *cobra.Command, args []string) error {
	return withApp(cmd, access.OpProbeRead, func(ctx context.Context, a *app.App, _ model.Actor) error {
		p, err := a.Registry.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	})
}

func runProbeEvents(cmd *cobra.Command, args []string) error {
	return withApp(cmd, access.OpProbeRead, func(ctx context.Context, a *app.App, _ model.Actor) error {
		evts, err := a.Registry.Events(ctx, args[0], eventsLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tTYPE\tSTATUS")
		for _, e := range evts {
			status, _ := e.Payload["status"].(string)
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Type, statusColor(status))
		}
		return tw.Flush()
	})
}
