package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"siege-coordinator/models"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newArchiveCmd(envFile *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List completed sieges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *envFile, nil, clockwork.NewRealClock())
			if err != nil {
				return err
			}
			defer a.Close()

			records := a.service.ListArchive()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			return writeArchive(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeArchive(w io.Writer, records []models.ArchiveRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No completed sieges.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTERRITORY\tTYPE\tTIER\tNODE\tRESULT\tPARTICIPANTS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.Date, r.Territory, r.Type, r.Tier, r.Node, r.Result, len(r.Participants))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
