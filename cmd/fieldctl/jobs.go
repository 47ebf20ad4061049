package main

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/fieldforce/fieldforce/internal/app"
	"github.com/fieldforce/fieldforce/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Background queue inspection",
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print queue counters as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer inspector.Close()
		stats, err := jobs.InspectQueue(inspector, jobs.QueueDefault)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	jobsCmd.AddCommand(jobsStatsCmd)
}
