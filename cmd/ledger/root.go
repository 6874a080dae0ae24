package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/platform/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ledger",
		Short:        "Course authoring tools for the Great Ledger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			logger, err := logging.New(cmd.ErrOrStderr(), logging.Options{Level: level, Format: "text"})
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().String("dir", "", "Course directory (defaults to the built-in course)")
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newOutlineCmd())
	return root
}

// loadTree loads the course from --dir, or the built-in course.
func loadTree(cmd *cobra.Command) (*content.Tree, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		return content.Default()
	}
	return content.LoadDir(dir)
}
