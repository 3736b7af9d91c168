package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"folio/engine/internal/diff"
)

func newDiffCmd() *cobra.Command {
	var statOnly bool
	cmd := &cobra.Command{
		Use:   "diff A B",
		Short: "Print the line diff of two files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readText(args[0])
			if err != nil {
				return err
			}
			b, err := readText(args[1])
			if err != nil {
				return err
			}

			lines := diff.Diff(a, b)
			out := cmd.OutOrStdout()
			if !statOnly {
				fmt.Fprint(out, diff.Unified(lines))
			}
			stats := diff.Summarize(lines)
			fmt.Fprintf(out, "%d insertion(s)(+), %d deletion(s)(-), %d unchanged\n", stats.Inserted, stats.Deleted, stats.Unchanged)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statOnly, "stat", false, "Print only the summary line")
	return cmd
}

func readText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(raw), nil
}
