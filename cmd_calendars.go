package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskslot/pkg/app"
	"github.com/harrisonrobin/taskslot/pkg/google"
	"github.com/harrisonrobin/taskslot/pkg/ledger"
	"github.com/harrisonrobin/taskslot/pkg/model"
)

func newCalendarsCmd(configPath *string) *cobra.Command {
	cals := &cobra.Command{Use: "calendars", Short: "Manage calendar routing and busy calendars"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List Google calendars with their routing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConnectedApp(*configPath, false, func(ctx context.Context, a *app.App) error {
				calendars, err := a.Calendar.ListCalendars(ctx)
				if err != nil {
					return err
				}
				mappings, err := a.Store.Mappings(ctx)
				if err != nil {
					return err
				}
				busy, err := a.Store.BusyCalendars(ctx)
				if err != nil {
					return err
				}
				printCalendars(cmd, calendars, mappings, busy)
				return nil
			})
		},
	}

	mapCmd := &cobra.Command{
		Use:   "map <project> <calendar>",
		Short: "Route a project's tasks to a calendar",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnectedApp(*configPath, false, func(ctx context.Context, a *app.App) error {
				project, err := findProject(ctx, a, args[0])
				if err != nil {
					return err
				}
				cal, err := findCalendar(ctx, a.Calendar, args[1])
				if err != nil {
					return err
				}
				err = a.Store.SetCalendarMapping(ctx, ledger.Mapping{
					ProjectUID:   project.UID,
					ProjectName:  project.Name,
					CalendarID:   cal.ID,
					CalendarName: cal.Summary,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", project.Name, cal.Summary)
				return nil
			})
		},
	}

	unmapCmd := &cobra.Command{
		Use:   "unmap <project>",
		Short: "Remove a project's calendar route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app.App) error {
				mappings, err := a.Store.Mappings(ctx)
				if err != nil {
					return err
				}
				for _, m := range mappings {
					if m.IsDefault {
						continue
					}
					if m.ProjectUID == args[0] || strings.EqualFold(m.ProjectName, args[0]) {
						if err := a.Store.RemoveCalendarMapping(ctx, m.ProjectUID); err != nil {
							return err
						}
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed mapping for %s\n", m.ProjectName)
						return nil
					}
				}
				return fmt.Errorf("no mapping for project '%s'", args[0])
			})
		},
	}

	defaultCmd := &cobra.Command{
		Use:   "default <calendar>",
		Short: "Set the calendar for tasks without a project route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnectedApp(*configPath, false, func(ctx context.Context, a *app.App) error {
				cal, err := findCalendar(ctx, a.Calendar, args[0])
				if err != nil {
					return err
				}
				if err := a.Store.SetDefaultCalendar(ctx, cal.ID, cal.Summary); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Default calendar set to: %s\n", cal.Summary)
				return nil
			})
		},
	}

	cals.AddCommand(listCmd, mapCmd, unmapCmd, defaultCmd, newBusyCmd(configPath))
	return cals
}

func newBusyCmd(configPath *string) *cobra.Command {
	busy := &cobra.Command{Use: "busy", Short: "Choose which calendars count as busy time"}

	addCmd := &cobra.Command{
		Use:   "add <calendar>",
		Short: "Consult a calendar for busy time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnectedApp(*configPath, false, func(ctx context.Context, a *app.App) error {
				cal, err := findCalendar(ctx, a.Calendar, args[0])
				if err != nil {
					return err
				}
				if err := a.Store.AddBusyCalendar(ctx, cal.ID, cal.Summary); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "busy calendar added: %s\n", cal.Summary)
				return nil
			})
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <calendar>",
		Short: "Stop consulting a calendar for busy time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, a *app.App) error {
				all, err := a.Store.BusyCalendars(ctx)
				if err != nil {
					return err
				}
				for _, b := range all {
					if b.CalendarID == args[0] || strings.EqualFold(b.CalendarName, args[0]) {
						if err := a.Store.RemoveBusyCalendar(ctx, b.CalendarID); err != nil {
							return err
						}
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "busy calendar removed: %s\n", b.CalendarName)
						return nil
					}
				}
				return fmt.Errorf("calendar '%s' is not a busy calendar", args[0])
			})
		},
	}

	busy.AddCommand(addCmd, rmCmd)
	return busy
}

func findProject(ctx context.Context, a *app.App, nameOrUID string) (model.Project, error) {
	projects, err := a.Tasks.ListProjects(ctx)
	if err != nil {
		return model.Project{}, err
	}
	for _, p := range projects {
		if p.UID == nameOrUID || strings.EqualFold(p.Name, nameOrUID) {
			return p, nil
		}
	}
	return model.Project{}, fmt.Errorf("project '%s' not found", nameOrUID)
}

func findCalendar(ctx context.Context, c *google.CalendarClient, nameOrID string) (google.Calendar, error) {
	calendars, err := c.ListCalendars(ctx)
	if err != nil {
		return google.Calendar{}, err
	}
	for _, cal := range calendars {
		if cal.ID == nameOrID || cal.Summary == nameOrID {
			return cal, nil
		}
	}
	return google.Calendar{}, fmt.Errorf("calendar '%s' not found", nameOrID)
}

func printCalendars(cmd *cobra.Command, calendars []google.Calendar, mappings []ledger.Mapping, busy []ledger.BusyCalendar) {
	routes := map[string][]string{}
	for _, m := range mappings {
		routes[m.CalendarID] = append(routes[m.CalendarID], m.ProjectName)
	}
	busySet := map[string]bool{}
	for _, b := range busy {
		if b.Enabled {
			busySet[b.CalendarID] = true
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()
	_, _ = fmt.Fprintln(w, "NAME\tID\tACCESS\tBUSY\tPROJECTS")
	for _, c := range calendars {
		name := c.Summary
		if c.Primary {
			name += " (primary)"
		}
		b := ""
		if busySet[c.ID] {
			b = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, c.ID, c.AccessRole, b, strings.Join(routes[c.ID], ", "))
	}
}
