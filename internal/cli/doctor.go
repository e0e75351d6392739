package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/probeplane/internal/audit"
	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/store"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, store and evidence log readiness",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	// 1. Config file.
	cfg, cfgErr := loadConfig()
	switch {
	case cfgErr != nil:
		checks = append(checks, checkResult{label: "config", detail: cfgErr.Error(), fix: "fix " + path})
	default:
		if _, err := os.Stat(path); err == nil {
			checks = append(checks, checkResult{label: "config", ok: true, detail: path})
		} else {
			checks = append(checks, checkResult{label: "config", ok: true, detail: "built-in defaults (no " + path + ")"})
		}
	}

	if cfg != nil {
		// 2. Store reachable and migrated.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			checks = append(checks, checkResult{label: "store", detail: err.Error(), fix: "check store.driver and store.dsn"})
		} else {
			if err := st.Ping(ctx); err != nil {
				checks = append(checks, checkResult{label: "store", detail: err.Error()})
			} else {
				checks = append(checks, checkResult{label: "store", ok: true, detail: st.Driver()})
			}
			_ = st.Close()
		}
		cancel()

		// 3. Evidence log chain.
		switch {
		case cfg.Audit.Path == "":
			checks = append(checks, checkResult{label: "audit log", ok: true, detail: "disabled"})
		default:
			if _, err := os.Stat(cfg.Audit.Path); err != nil {
				checks = append(checks, checkResult{label: "audit log", ok: true, detail: "not created yet"})
			} else if res := audit.Verify(cfg.Audit.Path); res.Valid {
				checks = append(checks, checkResult{label: "audit log", ok: true, detail: fmt.Sprintf("%d entries, chain intact (head %.19s)", res.Lines, res.Head)})
			} else {
				checks = append(checks, checkResult{
					label:  "audit log",
					detail: fmt.Sprintf("chain broken at line %d", res.ErrorLine),
					fix:    "probeplane audit verify",
				})
			}
		}

		// 4. Access grants.
		if n := len(cfg.Access.Grants); n > 0 {
			checks = append(checks, checkResult{label: "access", ok: true, detail: fmt.Sprintf("%d grants", n)})
		} else {
			checks = append(checks, checkResult{label: "access", ok: true, detail: "open (no grants configured)"})
		}
	}

	out := cmd.OutOrStdout()
	hasFailures := false
	for _, c := range checks {
		mark := color.GreenString("✓")
		if !c.ok {
			mark = color.RedString("✗")
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-12s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out)
	if hasFailures {
		fmt.Fprintln(out, "Some checks failed.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Fprintln(out, "All checks passed.")
	return nil
}
