package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"courtside/internal/ipc"
)

func newLinkCommand(ctx *commandContext) *cobra.Command {
	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Manage cross-modal correlation links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	linkCmd.AddCommand(newLinkListCommand(ctx))
	linkCmd.AddCommand(newLinkAddCommand(ctx))
	linkCmd.AddCommand(newLinkRemoveCommand(ctx))
	return linkCmd
}

func newLinkListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LinkList()
				if err != nil {
					return err
				}
				if len(resp.Links) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No links configured")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderLinkTable(resp.Links))
				return nil
			})
		},
	}
}

func newLinkAddCommand(ctx *commandContext) *cobra.Command {
	var windowFlags []string
	cmd := &cobra.Command{
		Use:   "add <audio-stream> <visual-stream>",
		Short: "Link an audio and a visual stream for correlation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			windows, err := parseWindowFlags(windowFlags)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Link(ipc.LinkRequest{
					AudioID:   args[0],
					VisualID:  args[1],
					WindowsMS: windows,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s <-> %s (%s)\n", args[0], args[1], resp.LinkID)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&windowFlags, "window", nil,
		"Pattern window as kind=ms (repeatable); empty accepts all kinds at the default window")
	return cmd
}

// parseWindowFlags converts repeated kind=ms flags into a window map.
func parseWindowFlags(flags []string) (map[string]int, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	windows := make(map[string]int, len(flags))
	for _, flag := range flags {
		kind, value, ok := strings.Cut(flag, "=")
		if !ok || kind == "" {
			return nil, fmt.Errorf("invalid --window %q, expected kind=ms", flag)
		}
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid window duration in %q", flag)
		}
		windows[kind] = ms
	}
	return windows, nil
}

func newLinkRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <link-id>",
		Short: "Remove a correlation link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Unlink(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Link removed")
				return nil
			})
		},
	}
}
