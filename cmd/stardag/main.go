// Command stardag is a small demo CLI: it drives the build/registry
// engine over a built-in task pipeline and renders the resulting
// build/task status as a table, grounded on the teacher's cmd package
// layout (root command + cobra subcommands, version set via ldflags).
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
