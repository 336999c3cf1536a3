package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskslot/pkg/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "taskslot",
		Short:         "Schedule Tududi tasks into free Google Calendar time",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/taskslot/config.yaml)")

	root.AddCommand(newAuthCmd(&configPath))
	root.AddCommand(newSyncCmd(&configPath))
	root.AddCommand(newPlanCmd(&configPath))
	root.AddCommand(newDaemonCmd(&configPath))
	root.AddCommand(newStatusCmd(&configPath))
	root.AddCommand(newCalendarsCmd(&configPath))
	root.AddCommand(newConfigCmd(&configPath))
	return root
}

// withApp opens the app, runs fn and closes it. Interrupts cancel ctx.
func withApp(configPath string, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.Open(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

// withConnectedApp is withApp plus the Google client and orchestrator.
func withConnectedApp(configPath string, interactive bool, fn func(ctx context.Context, a *app.App) error) error {
	return withApp(configPath, func(ctx context.Context, a *app.App) error {
		if err := a.Connect(ctx, interactive); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
