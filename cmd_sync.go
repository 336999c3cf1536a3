package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskslot/pkg/app"
	"github.com/harrisonrobin/taskslot/pkg/auth"
	"github.com/harrisonrobin/taskslot/pkg/engine"
	"github.com/harrisonrobin/taskslot/pkg/ics"
)

func newAuthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Calendar access and store the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app.App) error {
				if err := auth.Authorize(ctx, auth.CalendarScopes, a.Log.Named("auth")); err != nil {
					return fmt.Errorf("authentication failed: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Authentication successful, token saved.")
				return nil
			})
		},
	}
}

func newSyncCmd(configPath *string) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConnectedApp(*configPath, interactive, func(ctx context.Context, a *app.App) error {
				res := a.Orchestrator.RunCycle(ctx)
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if res.Contended {
					return errors.New("another sync is in progress")
				}
				if !res.Success {
					return fmt.Errorf("sync finished with %d error(s)", len(res.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&interactive, "interactive", false, "run the browser consent flow when no token is stored")
	return cmd
}

func newPlanCmd(configPath *string) *cobra.Command {
	var icsPath string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show where unscheduled tasks would be placed, without changing anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConnectedApp(*configPath, false, func(ctx context.Context, a *app.App) error {
				plan, err := a.Orchestrator.Plan(ctx)
				if err != nil {
					return err
				}
				if icsPath != "" {
					out := ics.ExportPlacements(plan.Placements, a.Config.Timezone, plan.GeneratedAt)
					if err := os.WriteFile(icsPath, []byte(out), 0o644); err != nil {
						return fmt.Errorf("write %s: %w", icsPath, err)
					}
				}
				printPlacements(cmd, plan.Placements, a.Config.Location())
				for _, r := range plan.Unplaced {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "unplaced: %s (%d min)\n",
						engine.StripMarkers(r.Task.Name), r.EstimatedMinutes)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&icsPath, "ics", "", "also write the plan as an iCalendar file")
	return cmd
}

func printPlacements(cmd *cobra.Command, placements []engine.Placement, loc *time.Location) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()
	_, _ = fmt.Fprintln(w, "START\tEND\tBREAK\tTYPE\tSCORE\tCALENDAR\tTASK")
	for _, p := range placements {
		peak := ""
		if p.IsPeakSlot {
			peak = " (peak)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%dm\t%s%s\t%.2f\t%s\t%s\n",
			p.EventStart.In(loc).Format("Mon 02 Jan 15:04"),
			p.EventEnd.In(loc).Format("15:04"),
			p.BreakMinutes,
			p.Ranked.TaskType, peak,
			p.Ranked.Score,
			p.CalendarID,
			strings.TrimSpace(engine.StripMarkers(p.Task.Name)))
	}
}
