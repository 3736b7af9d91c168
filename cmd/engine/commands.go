package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "engine",
	Short:         "Document versioning and merge engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errConflicts marks a merge that finished with conflict markers. It maps to
// exit status 1 without an error message.
var errConflicts = errors.New("merge has conflicts")

// Run executes the CLI and returns the process exit status.
func Run() int {
	// a missing .env file is fine
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errConflicts) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		return 1
	}
	return 0
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newDiffCmd())
	rootCmd.AddCommand(newMergeCmd())
}
