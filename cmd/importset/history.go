package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importset/internal/core"
	"github.com/JonMunkholm/importset/internal/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded builds, newest first",
		Long:  "Lists builds recorded in the history database. Requires DATABASE_URL.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistory(cmd.Context(), limit, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultListLimit, "maximum number of builds to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func (a *app) runHistory(ctx context.Context, limit int, asJSON bool) error {
	svc, cleanup, err := newService(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := svc.History(ctx, limit)
	if err != nil {
		return err
	}

	if asJSON {
		if records == nil {
			records = []core.BuildRecord{}
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	return writeHistoryTable(a.stdout, records)
}

// writeHistoryTable prints one aligned row per record.
func writeHistoryTable(w io.Writer, records []core.BuildRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tUPSTREAM\tRUN\tDOWNSTREAM\tSTATUS\tPARAMS\tRESULT")
	for _, rec := range records {
		result := rec.OutputPath
		if rec.PublishedTo != "" {
			result = rec.PublishedTo
		}
		if rec.Status == core.BuildFailed {
			result = rec.ErrorCode
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.StartedAt.Local().Format(time.DateTime),
			rec.Upstream, rec.Run, rec.Downstream, rec.Status, rec.Parameters, result)
	}
	return tw.Flush()
}
