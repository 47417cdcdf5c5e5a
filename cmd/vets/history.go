package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/vets/internal/history"
	"github.com/GriffinCanCode/vets/internal/server"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently recorded translation batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled (history.enabled = false)")
			}
			if limit <= 0 || limit > server.MaxHistoryLimit {
				return fmt.Errorf("--limit must be between 1 and %d", server.MaxHistoryLimit)
			}

			store, err := history.Open(cmd.Context(), cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), entries, asJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", server.DefaultHistoryLimit, "Number of batches to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printHistory(out io.Writer, entries []history.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if entries == nil {
			entries = []history.Entry{}
		}
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No history recorded")
		return nil
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Time", "Window", "Source", "Romaji", "Translation"},
		historyRows(entries),
		[]columnAlignment{alignRight},
	))
	return nil
}

// historyRows flattens entries to one row per packet; batch columns repeat only on the
// first packet.
func historyRows(entries []history.Entry) [][]string {
	var rows [][]string
	for _, e := range entries {
		id := strconv.FormatInt(e.ID, 10)
		when := e.CreatedAt.Local().Format("2006-01-02 15:04:05")
		for i, p := range e.Packets {
			if i == 0 {
				rows = append(rows, []string{id, when, e.Window, p.Source, p.Romanized, p.Translated})
				continue
			}
			rows = append(rows, []string{"", "", "", p.Source, p.Romanized, p.Translated})
		}
	}
	return rows
}
