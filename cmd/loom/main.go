// Command loom is the CLI surface of the orchestration core: the remote
// gateway daemon plus the stable configuration commands (provider
// capabilities, health checks, embedding config, index config, keyring
// secrets).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "loom",
		Short: "Loom agentic orchestration core",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "path to the SQLite database")

	root.AddCommand(
		newServeCmd(),
		newProvidersCmd(),
		newHealthCmd(),
		newEmbeddingCmd(),
		newIndexConfigCmd(),
		newKeysCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "loom.db"
	}
	return home + "/.loom/loom.db"
}
