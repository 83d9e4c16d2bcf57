package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/scraper/agent/internal/catalog"
	"github.com/obsidianstack/scraper/agent/internal/config"
	"github.com/obsidianstack/scraper/agent/internal/scrape"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and metrics declaration and list the jobs they produce",
		Long: `Loads the runtime config and the metrics declaration without contacting
Azure, and prints one line per scrape job: name, schedule and resource id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			envFile, _ := cmd.Flags().GetString("env-file")
			config.LoadEnv(envFile)
			return validate(cmd.OutOrStdout(), configPath)
		},
	}
}

func validate(out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	decl, err := catalog.Load(cfg.MetricsDeclaration.Path)
	if err != nil {
		return err
	}

	defs := scrape.Build(decl, nil)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSCHEDULE\tRESOURCE")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.JobName, d.Schedule.Cron, d.ResourceID())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d job(s), %d metric(s)\n", len(defs), len(decl.Metrics))
	return nil
}
