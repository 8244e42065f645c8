package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"siege-coordinator/models"
	"siege-coordinator/services"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newStatsCmd(envFile *string) *cobra.Command {
	var (
		period string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Per-member participation from the archive",
		Long:  "Counts archived sign-ups per member and role. --period keeps records whose\ncompletion date contains the given text, e.g. 12.2030 or 2030.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *envFile, nil, clockwork.NewRealClock())
			if err != nil {
				return err
			}
			defer a.Close()

			stats := a.service.Stats(period)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			return writeStats(cmd.OutOrStdout(), period, stats)
		},
	}
	cmd.Flags().StringVar(&period, "period", services.AllPeriods, "date substring to filter by, or \"all\"")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeStats(w io.Writer, period string, stats []services.ParticipantStats) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintf(w, "No participation for period %q.\n", period)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"NAME"}
	for _, role := range models.Roles {
		header = append(header, strings.ToUpper(string(role)))
	}
	header = append(header, "TOTAL", "DATES")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, st := range stats {
		row := []string{st.Name}
		for _, role := range models.Roles {
			row = append(row, fmt.Sprint(st.Roles[role]))
		}
		row = append(row, fmt.Sprint(st.Total), strings.Join(st.Dates, ", "))
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
