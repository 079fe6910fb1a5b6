package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"courtside/internal/ipc"
)

func newFrameCommand(ctx *commandContext) *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "frame <stream-id>",
		Short: "Dispatch a single frame through the worker pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("payload is not valid JSON")
				}
				raw = json.RawMessage(payload)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProcessFrame(ipc.ProcessFrameRequest{
					StreamID: args[0],
					Payload:  raw,
				})
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Success {
					fmt.Fprintf(stdout, "Frame failed: %s\n", humanizeKind(resp.FailureKind))
					return nil
				}
				fmt.Fprintf(stdout, "Frame processed by %s in %s (compliant=%s, quality=%s)\n",
					resp.WorkerID, formatMS(resp.LatencyMS), yesNo(resp.Compliant),
					formatPercent(resp.QualityScore))
				for _, corr := range resp.Correlations {
					fmt.Fprintf(stdout, "  correlation: %s %s <-> %s, dt=%s, confidence=%s\n",
						humanizeKind(corr.Kind), corr.SourceStream, corr.TargetStream,
						formatMS(corr.TimeDifferenceMS), formatPercent(corr.Confidence))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload forwarded to the worker")
	return cmd
}
