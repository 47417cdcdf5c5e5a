package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/vets/internal/screen"
)

func newWindowsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "windows",
		Short: "List windows that can be captured",
		RunE: func(cmd *cobra.Command, args []string) error {
			if missing := screen.CheckTools(); len(missing) > 0 {
				slog.Warn("window capture tools missing", "tools", missing)
			}
			titles, err := screen.NewCapturer(screen.NewSource()).Windows(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(titles)
			}
			if len(titles) == 0 {
				fmt.Fprintln(out, "No windows found")
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Title"}, windowRows(titles), []columnAlignment{alignRight, alignLeft}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func windowRows(titles []string) [][]string {
	rows := make([][]string, 0, len(titles))
	for i, title := range titles {
		rows = append(rows, []string{strconv.Itoa(i + 1), title})
	}
	return rows
}
