package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtside/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, pool and stream status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				colorize := colorizeOutput()

				fmt.Fprintf(stdout, "Daemon:   running=%s pid=%d\n", yesNo(status.Running), status.PID)
				fmt.Fprintf(stdout, "Workers:  %d total, %d ready, %d busy, success %s\n",
					len(status.Pool.Workers), status.Pool.Ready, status.Pool.Busy,
					paintRate(status.Pool.SuccessRate, colorize))
				fmt.Fprintf(stdout, "Results:  %s\n", status.ResultsDB)
				if status.MetricsAddr != "" {
					fmt.Fprintf(stdout, "Metrics:  http://%s/metrics\n", status.MetricsAddr)
				}

				if len(status.Pool.Workers) > 0 {
					fmt.Fprintln(stdout)
					fmt.Fprintln(stdout, renderWorkerTable(status.Pool.Workers))
				}
				if len(status.Streams) > 0 {
					fmt.Fprintln(stdout)
					fmt.Fprintln(stdout, renderStreamTable(status.Streams))
				}
				if len(status.Links) > 0 {
					fmt.Fprintln(stdout)
					fmt.Fprintln(stdout, renderLinkTable(status.Links))
				}
				return nil
			})
		},
	}
}

func renderWorkerTable(workers []ipc.WorkerStatus) string {
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		rows = append(rows, []string{
			w.ID,
			fmt.Sprintf("%d", w.PID),
			w.Status,
			fmt.Sprintf("%d", w.RequestsServed),
			fmt.Sprintf("%d", w.Errors),
			fmt.Sprintf("%d", w.Restarts),
		})
	}
	return renderTable(
		[]string{"WORKER", "PID", "STATUS", "SERVED", "ERRORS", "RESTARTS"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight},
	)
}

func renderStreamTable(streams []ipc.StreamStatus) string {
	rows := make([][]string, 0, len(streams))
	for _, s := range streams {
		rows = append(rows, []string{
			s.ID,
			s.Modality,
			fmt.Sprintf("%.1f fps", s.ExpectedRate),
			fmt.Sprintf("%d", s.Frames),
			formatPercent(s.QualityScore),
			yesNo(s.WithinTargetPrecision),
			formatMS(s.CorrectionMS),
		})
	}
	return renderTable(
		[]string{"STREAM", "MODALITY", "RATE", "FRAMES", "QUALITY", "IN SYNC", "CORRECTION"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight},
	)
}

func renderLinkTable(links []ipc.LinkStatus) string {
	rows := make([][]string, 0, len(links))
	for _, l := range links {
		rows = append(rows, []string{
			l.ID,
			l.AudioID,
			l.VisualID,
			fmt.Sprintf("%d", l.Matches),
			formatPercent(l.RunningConfidence),
		})
	}
	return renderTable(
		[]string{"LINK", "AUDIO", "VISUAL", "MATCHES", "CONFIDENCE"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}
