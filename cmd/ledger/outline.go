package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/ledger/internal/report"
)

func newOutlineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outline",
		Short: "Export the course outline as an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("out")
			tree, err := loadTree(cmd)
			if err != nil {
				return err
			}

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating %s: %w", path, err)
			}
			if err := report.WriteOutline(f, tree, nil, nil); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d nodes to %s\n", tree.Count(), path)
			return nil
		},
	}
	cmd.Flags().String("out", "outline.xlsx", "Output file")
	return cmd
}
