// Command ledger is the course authoring tool: it validates course
// directories, runs scripts in the sandbox, checks reference solutions
// and exports the outline.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
