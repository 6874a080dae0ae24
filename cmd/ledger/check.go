package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/sandbox"
)

var errNotPassed = errors.New("challenge not passed")

type checkResult struct {
	Node    string  `json:"node"`
	Passed  bool    `json:"passed"`
	Message string  `json:"message"`
	Stdout  *string `json:"stdout,omitempty"`
	Error   string  `json:"error,omitempty"`
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check --node <title> <script-file>",
		Short: "Grade a script against a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("node")
			tree, err := loadTree(cmd)
			if err != nil {
				return err
			}

			c, z, n, ok := tree.Find(title)
			if !ok {
				return fmt.Errorf("no node titled %q", title)
			}
			node, _ := tree.NodeAt(c, z, n)
			if node.Kind() != content.KindChallenge {
				return fmt.Errorf("%q is a %s, not a challenge", title, node.Kind())
			}

			script, err := readScript(cmd, args[0])
			if err != nil {
				return err
			}
			res := node.Grade(cmd.Context(), content.Submission{Script: &script}, sandbox.New(sandbox.DefaultConfig()))

			if err := printJSON(cmd.OutOrStdout(), checkResult{
				Node:    title,
				Passed:  res.Passed,
				Message: res.Message,
				Stdout:  res.Stdout,
				Error:   res.Error,
			}); err != nil {
				return err
			}
			if !res.Passed {
				return errNotPassed
			}
			return nil
		},
	}
	cmd.Flags().String("node", "", "Challenge title")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}
