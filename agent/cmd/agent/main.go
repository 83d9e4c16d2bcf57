// Command agent collects Azure Monitor metrics on cron schedules and
// republishes them to Prometheus and the configured push sinks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agent",
		Short: "Azure Monitor scrape agent",
		Long: `Collects Azure Monitor metrics for every resource in the metrics
declaration on independent schedules and serves them on a Prometheus scrape
endpoint, optionally pushing them to StatsD, Pub/Sub and a WebSocket stream.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "config.yaml", "path to the runtime config file")
	root.PersistentFlags().String("env-file", ".env", "optional .env file with secrets")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(1)
	}
}
