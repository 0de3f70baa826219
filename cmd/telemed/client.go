package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medconnect/telemed/internal/config"
	"github.com/medconnect/telemed/internal/domain/availability"
	"github.com/medconnect/telemed/internal/platform/apiclient"
	"github.com/medconnect/telemed/internal/platform/auth"
)

func newAPIClient(cfg *config.Config, logger zerolog.Logger) (*apiclient.Client, error) {
	if cfg.APIToken != "" {
		claims, err := auth.Inspect(cfg.APIToken)
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			logger.Warn().Str("subject", claims.Subject).Msg("API_TOKEN has expired, requests will be rejected")
		case err != nil:
			logger.Warn().Err(err).Msg("API_TOKEN is not a readable JWT")
		default:
			logger.Debug().Str("subject", claims.Subject).Str("role", claims.Role).Msg("acting as token subject")
		}
	}
	return apiclient.New(cfg.APIBaseURL,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithToken(cfg.APIToken),
		apiclient.WithLogger(logger),
	)
}

// dateFlag reads --date, defaulting to today in the clinic timezone.
func dateFlag(cmd *cobra.Command, loc *time.Location) (availability.Date, error) {
	raw, _ := cmd.Flags().GetString("date")
	if raw == "" {
		return availability.DateOf(time.Now(), loc), nil
	}
	return availability.ParseDate(raw)
}

// parseClock parses "HH:MM" local wall-clock times.
func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// resolveKeys maps local "HH:MM" times on date to the keys of the matching
// grid slots.
func resolveKeys(slots []availability.ReconciledSlot, date availability.Date, loc *time.Location, times []string) ([]string, error) {
	keys := make([]string, 0, len(times))
	for _, raw := range times {
		h, m, err := parseClock(raw)
		if err != nil {
			return nil, err
		}
		at := date.At(h, m, loc)
		found := false
		for _, s := range slots {
			if s.Start.Equal(at) {
				keys = append(keys, s.Key())
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%s is not on the %s grid", raw, date)
		}
	}
	return keys, nil
}

func printDay(w io.Writer, slots []availability.ReconciledSlot, loc *time.Location) {
	fmt.Fprintf(w, "%-6s %-21s %-9s %s\n", "LOCAL", "UTC", "STATE", "ID")
	for _, s := range slots {
		id := ""
		if s.IsFromServer() {
			id = s.ID.String()
		}
		fmt.Fprintf(w, "%-6s %-21s %-9s %s\n", s.Start.In(loc).Format("15:04"), availability.FormatInstant(s.Start), s.State, id)
	}
}

func printPeriods(w io.Writer, groups []availability.PeriodSlots, loc *time.Location) {
	for _, g := range groups {
		fmt.Fprintf(w, "%s:", g.Period.Name)
		if len(g.Slots) == 0 {
			fmt.Fprint(w, " -")
		}
		for _, s := range g.Slots {
			fmt.Fprintf(w, " %s(#%s)", s.Start.In(loc).Format("15:04"), s.ID)
		}
		fmt.Fprintln(w)
	}
}

func gridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the slot grid for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			grid, err := cfg.GridSpec()
			if err != nil {
				return err
			}
			date, err := dateFlag(cmd, grid.Location)
			if err != nil {
				return err
			}
			starts, err := grid.Generate(date)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, s := range starts {
				fmt.Fprintf(w, "%s %s\n", s.In(grid.Location).Format("15:04"), availability.FormatInstant(s))
			}
			return nil
		},
	}
	cmd.Flags().String("date", "", "Day as YYYY-MM-DD (default today)")
	return cmd
}

func calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "View and edit your own availability",
	}
	cmd.PersistentFlags().String("date", "", "Day as YYYY-MM-DD (default today)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the day's grid against your availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalendar(cmd, availability.ModeNone, nil)
		},
	})

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Open slots at the given local times",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, _ := cmd.Flags().GetStringSlice("at")
			return runCalendar(cmd, availability.ModeAdd, at)
		},
	}
	addCmd.Flags().StringSlice("at", nil, "Local HH:MM start times, comma separated")
	cmd.AddCommand(addCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove open slots at the given local times",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, _ := cmd.Flags().GetStringSlice("at")
			return runCalendar(cmd, availability.ModeDelete, at)
		},
	}
	deleteCmd.Flags().StringSlice("at", nil, "Local HH:MM start times, comma separated")
	cmd.AddCommand(deleteCmd)

	return cmd
}

// runCalendar loads the day, applies one edit session in mode when mode is
// not ModeNone, and prints the resulting day.
func runCalendar(cmd *cobra.Command, mode availability.Mode, times []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	grid, err := cfg.GridSpec()
	if err != nil {
		return err
	}
	date, err := dateFlag(cmd, grid.Location)
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}
	cal, err := availability.NewCalendar(client, grid, date, availability.WithLogger(logger))
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := cal.Refresh(ctx); err != nil {
		return err
	}

	if mode != availability.ModeNone {
		if len(times) == 0 {
			return fmt.Errorf("--at is required")
		}
		keys, err := resolveKeys(cal.Slots(), date, grid.Location, times)
		if err != nil {
			return err
		}
		if mode == availability.ModeAdd {
			err = cal.EnterAdd()
		} else {
			err = cal.EnterDelete()
		}
		if err != nil {
			return err
		}
		changed := 0
		for _, k := range keys {
			ok, err := cal.Toggle(k)
			if err != nil {
				return err
			}
			if ok {
				changed++
			}
		}
		if changed < len(keys) {
			logger.Warn().Int("requested", len(keys)).Int("applied", changed).Msg("some slots could not be toggled")
		}
		if err := cal.Save(ctx); err != nil {
			return err
		}
	}

	printDay(cmd.OutOrStdout(), cal.Slots(), grid.Location)
	return nil
}

func doctorSlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor-slots",
		Short: "List a doctor's bookable slots for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			grid, err := cfg.GridSpec()
			if err != nil {
				return err
			}
			date, err := dateFlag(cmd, grid.Location)
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, logger)
			if err != nil {
				return err
			}
			day, err := availability.DoctorDay(cmd.Context(), client, doctorID, date, grid)
			if err != nil {
				return err
			}
			groups := availability.GroupByPeriod(availability.Bookable(day), grid.Location, availability.DefaultPeriods)
			printPeriods(cmd.OutOrStdout(), groups, grid.Location)
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("date", "", "Day as YYYY-MM-DD (default today)")
	return cmd
}

func bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment in a doctor's slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			slotID, _ := cmd.Flags().GetString("slot")
			notes, _ := cmd.Flags().GetString("notes")

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, logger)
			if err != nil {
				return err
			}
			appt, err := client.BookAppointment(cmd.Context(), availability.RecordID(doctorID), availability.RecordID(slotID), notes)
			if err != nil {
				return err
			}
			status := appt.Status
			if status == "" {
				status = "requested"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appointment %s for slot %s: %s\n", appt.ID, appt.AvailabilityID, status)
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("slot", "", "Availability slot id")
	cmd.Flags().String("notes", "", "Notes for the doctor")
	return cmd
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Manage the patient's own appointments",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			grid, err := cfg.GridSpec()
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, logger)
			if err != nil {
				return err
			}
			appts, err := client.ListMyAppointments(cmd.Context())
			if err != nil {
				return err
			}
			printAppointments(cmd.OutOrStdout(), appts, grid.Location)
			return nil
		},
	})

	notesCmd := &cobra.Command{
		Use:   "notes <id>",
		Short: "Replace the notes on an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			appt, err := client.UpdateAppointmentNotes(cmd.Context(), availability.RecordID(args[0]), text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appointment %s notes updated\n", appt.ID)
			return nil
		},
	}
	notesCmd.Flags().String("text", "", "New notes for the doctor")
	cmd.AddCommand(notesCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an appointment and release its slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}
			if err := client.CancelAppointment(cmd.Context(), availability.RecordID(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appointment %s cancelled\n", args[0])
			return nil
		},
	})
	return cmd
}

func clientFromCmd(cmd *cobra.Command) (*apiclient.Client, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg, logger)
}

func printAppointments(w io.Writer, appts []apiclient.Appointment, loc *time.Location) {
	fmt.Fprintf(w, "%-36s %-8s %-16s %-10s %s\n", "ID", "DOCTOR", "START", "STATUS", "NOTES")
	for _, a := range appts {
		start := "-"
		if !a.Start.IsZero() {
			start = a.Start.In(loc).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%-36s %-8s %-16s %-10s %s\n", a.ID, a.DoctorID, start, a.Status, a.Notes)
	}
}
