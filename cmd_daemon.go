package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/app"
	"github.com/harrisonrobin/taskslot/pkg/server"
	"github.com/harrisonrobin/taskslot/pkg/trigger"
)

func newDaemonCmd(configPath *string) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync on the configured interval and serve the status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConnectedApp(*configPath, false, func(ctx context.Context, a *app.App) error {
				if listen == "" {
					listen = a.Config.Listen
				}

				sched := trigger.New(a.Orchestrator, a.Log.Named("trigger"))
				if err := sched.Start(a.Config.SyncInterval()); err != nil {
					return err
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					if err := sched.Stop(stopCtx); err != nil {
						a.Log.Warn("scheduler did not stop cleanly", zap.Error(err))
					}
				}()

				go func() {
					res := sched.RunNow(ctx)
					a.Log.Info("initial sync finished",
						zap.Bool("success", res.Success),
						zap.Int("scheduled", res.Scheduled),
						zap.Strings("errors", res.Errors))
				}()

				srv := server.NewServer(server.Deps{
					Dashboard: a.Store,
					Lease:     a.Lease,
					Trigger:   sched,
					Location:  a.Config.Location(),
					TimeZone:  a.Config.Timezone,
					Clock:     a.Clock,
					Log:       a.Log.Named("http"),
				})
				return srv.Serve(ctx, listen)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default from config)")
	return cmd
}

func newStatusCmd(configPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync lease and ledger statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app.App) error {
				st, err := a.Lease.Status(ctx)
				if err != nil {
					return err
				}
				loc := a.Config.Location()
				now := a.Clock.Now().In(loc)
				dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
				stats, err := a.Store.Stats(ctx, dayStart, dayStart.AddDate(0, 0, 1))
				if err != nil {
					return err
				}
				upcoming, err := a.Store.Upcoming(ctx, now, 0)
				if err != nil {
					return err
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"sync":     st,
						"stats":    stats,
						"upcoming": upcoming,
					})
				}

				out := cmd.OutOrStdout()
				switch {
				case st.InProgress:
					_, _ = fmt.Fprintf(out, "sync: in progress since %s\n", st.StartedAt.In(loc).Format(time.RFC3339))
				case st.LastCompletedAt.IsZero():
					_, _ = fmt.Fprintln(out, "sync: never run")
				default:
					_, _ = fmt.Fprintf(out, "sync: idle, last completed %s\n", st.LastCompletedAt.In(loc).Format(time.RFC3339))
				}
				_, _ = fmt.Fprintf(out, "scheduled today: %d  pending: %d  rescheduled: %d  completed: %d\n\n",
					stats.ScheduledToday, stats.Pending, stats.Rescheduled, stats.Completed)

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				defer w.Flush()
				_, _ = fmt.Fprintln(w, "START\tEND\tRESCHEDULED\tTASK")
				for _, r := range upcoming {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
						r.ScheduledStart.In(loc).Format("Mon 02 Jan 15:04"),
						r.ScheduledEnd.In(loc).Format("15:04"),
						r.RescheduleCount,
						r.CleanName)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
