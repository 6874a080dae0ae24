package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/ledger/internal/content"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Load and schema-check a course directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("dir", args[0]); err != nil {
					return err
				}
			}
			tree, err := loadTree(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, ch := range tree.Chapters() {
				counts := map[content.Kind]int{}
				for _, z := range ch.Zones {
					for _, n := range z.Nodes {
						counts[n.Kind()]++
					}
				}
				fmt.Fprintf(out, "%-40s  %d zones  %d lessons  %d quizzes  %d challenges\n",
					ch.Title, len(ch.Zones),
					counts[content.KindLesson], counts[content.KindQuiz], counts[content.KindChallenge])
			}
			fmt.Fprintf(out, "\n%d chapters, %d nodes: ok\n", tree.Len(), tree.Count())
			return nil
		},
	}
}
