package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"folio/engine/internal/merge"
)

func newMergeCmd() *cobra.Command {
	var (
		output string
		labels = merge.DefaultLabels
	)
	cmd := &cobra.Command{
		Use:   "merge BASE OURS THEIRS",
		Short: "Three-way merge of files; exits 1 when conflicts remain",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := make([]string, len(args))
			for i, path := range args {
				text, err := readText(path)
				if err != nil {
					return err
				}
				texts[i] = text
			}

			result := merge.MergeWithLabels(texts[0], texts[1], texts[2], labels)
			if output != "" {
				if err := os.WriteFile(output, []byte(result.Text), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), result.Text)
			}

			if result.HasConflict {
				fmt.Fprintln(cmd.ErrOrStderr(), "merge finished with conflicts")
				return errConflicts
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the merged text to this file instead of stdout")
	cmd.Flags().StringVar(&labels.Ours, "ours-label", labels.Ours, "Label for our side in conflict markers")
	cmd.Flags().StringVar(&labels.Theirs, "theirs-label", labels.Theirs, "Label for their side in conflict markers")
	return cmd
}
