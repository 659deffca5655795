package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"skystack/internal/config"
	"skystack/internal/history"
	"skystack/internal/logging"
)

func newHistoryCommand(configFlag *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent ingest attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return err
			}

			ledger, err := history.Open(cfg, logging.NewNop())
			if err != nil {
				return fmt.Errorf("open ingest ledger: %w", err)
			}
			defer ledger.Close()

			entries, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read ingest history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No ingest history recorded yet.")
				return nil
			}
			fmt.Fprintln(out, renderHistoryTable(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show")
	return cmd
}

func renderHistoryTable(entries []history.Entry) string {
	tw := table.NewWriter()
	if isatty.IsTerminal(os.Stdout.Fd()) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	tw.AppendHeader(table.Row{"TIME", "OUTCOME", "PATH", "PATTERN", "SIZE", "ERROR"})
	for _, entry := range entries {
		tw.AppendRow(table.Row{
			entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			entry.Outcome,
			entry.Path,
			entry.BayerPattern,
			historySize(entry),
			entry.Error,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func historySize(entry history.Entry) string {
	if entry.Width <= 0 || entry.Height <= 0 {
		return ""
	}
	return strconv.Itoa(entry.Width) + "x" + strconv.Itoa(entry.Height)
}
