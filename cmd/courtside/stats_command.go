package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtside/internal/ipc"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var eventLimit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate processing statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stats, err := client.Stats(eventLimit)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				colorize := colorizeOutput()

				fmt.Fprintf(stdout, "Frames:       %d (%d ok)\n", stats.Frames, stats.Successes)
				fmt.Fprintf(stdout, "Success rate: %s\n", paintRate(stats.SuccessRate, colorize))
				fmt.Fprintf(stdout, "Avg latency:  %s\n", formatMS(stats.AvgLatencyMS))
				fmt.Fprintf(stdout, "Compliance:   %s\n", paintRate(stats.ComplianceRate, colorize))

				if len(stats.WorkerEvents) > 0 {
					rows := make([][]string, 0, len(stats.WorkerEvents))
					for _, ev := range stats.WorkerEvents {
						rows = append(rows, []string{ev.CreatedAt, ev.WorkerID, humanizeKind(ev.Kind), ev.Detail})
					}
					fmt.Fprintln(stdout)
					fmt.Fprintln(stdout, renderTable(
						[]string{"TIME", "WORKER", "EVENT", "DETAIL"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
					))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&eventLimit, "events", 20, "Number of recent worker events to show")
	return cmd
}
