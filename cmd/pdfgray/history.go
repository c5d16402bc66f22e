// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ManuGH/pdfgray/internal/persistence/sqlite"
	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootFlags) *cobra.Command {
	var (
		limit int
		check string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); err == nil {
					err = cerr
				}
			}()
			ctx := cmd.Context()
			h, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if check != "" {
				mode, err := sqlite.ParseMode(check)
				if err != nil {
					return err
				}
				if err := h.Check(ctx, mode); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: ok (%s check)\n", h.Path(), mode)
				return nil
			}

			entries, err := h.List(ctx, limit)
			if err != nil {
				return err
			}
			sum, err := h.Summarize(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FINISHED\tTASK\tFILE\tSTATUS\tPAGES\tDURATION\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.FinishedAt.Local().Format(time.DateTime),
					orDash(e.TaskID), e.FileName, e.Status, e.PageCount,
					e.Duration.Round(time.Millisecond), orDash(e.Error))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d completed, %d failed\n", sum.Completed, sum.Failed)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVar(&check, "check", "", "run an integrity check instead: quick or full")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
