package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtside/internal/ipc"
)

func newStreamCommand(ctx *commandContext) *cobra.Command {
	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Manage registered streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	streamCmd.AddCommand(newStreamListCommand(ctx))
	streamCmd.AddCommand(newStreamRegisterCommand(ctx))
	streamCmd.AddCommand(newStreamStopCommand(ctx))
	return streamCmd
}

func newStreamListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StreamList()
				if err != nil {
					return err
				}
				if len(resp.Streams) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No streams registered")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStreamTable(resp.Streams))
				return nil
			})
		},
	}
}

func newStreamRegisterCommand(ctx *commandContext) *cobra.Command {
	var (
		modality string
		rate     float64
		offsetMS int
	)
	cmd := &cobra.Command{
		Use:   "register <stream-id>",
		Short: "Register a stream with the timing engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				_, err := client.StreamRegister(ipc.StreamRegisterRequest{
					ID:              args[0],
					Modality:        modality,
					ExpectedRate:    rate,
					LatencyOffsetMS: offsetMS,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stream %s registered\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&modality, "modality", "", "Stream modality: audio or visual")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Expected frame rate in fps")
	cmd.Flags().IntVar(&offsetMS, "latency-offset", 0, "Static capture latency compensation in ms")
	_ = cmd.MarkFlagRequired("modality")
	_ = cmd.MarkFlagRequired("rate")
	return cmd
}

func newStreamStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <stream-id>",
		Short: "Stop a stream and tear down its links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.StreamStop(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stream %s stopped\n", args[0])
				return nil
			})
		},
	}
}
