package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/ledger/internal/sandbox"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script-file>",
		Short: "Run a script in the sandbox and print its bindings and output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _ := cmd.Flags().GetString("runtime")
			if !sandbox.Runtime(rt).Valid() {
				return fmt.Errorf("unsupported runtime %q", rt)
			}
			script, err := readScript(cmd, args[0])
			if err != nil {
				return err
			}

			exec := sandbox.New(sandbox.DefaultConfig()).Execute(cmd.Context(), sandbox.Runtime(rt), script)
			if err := printJSON(cmd.OutOrStdout(), exec); err != nil {
				return err
			}
			if exec.Failed() {
				return fmt.Errorf("script failed: %s", exec.Err)
			}
			return nil
		},
	}
	cmd.Flags().String("runtime", string(sandbox.RuntimeStarlark), "Script runtime (starlark or lua)")
	return cmd
}

// readScript reads path, or stdin when path is "-".
func readScript(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
