// Command tablekv inspects database homes created with the tablekv library:
// persisted stores, sequence counters, and the write-ahead journal.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tablekv"
)

var rootCmd = &cobra.Command{
	Use:   "tablekv",
	Short: "embedded transactional table store tooling",
	Long: `tablekv

Tooling for database homes created with the tablekv library: list persisted
stores and sequence counters, dump the write-ahead journal, and run a local
performance smoke test.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// optional .env next to the working directory
		_ = godotenv.Load()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tablekv version",
	Run: func(cmd *cobra.Command, args []string) {
		major, minor, patch := tablekv.Version()
		fmt.Printf("tablekv v%d.%d.%d\n", major, minor, patch)
	},
}

func main() {
	rootCmd.AddCommand(versionCmd, infoCmd, sequencesCmd, journalCmd, perfCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
