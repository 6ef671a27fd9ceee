package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCampaignCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Control campaign lifecycle",
	}

	var reason string
	pause := &cobra.Command{
		Use:   "pause <campaign-id>",
		Short: "Pause a running campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(opts, func(e *Engine) error {
				if err := e.service.PauseCampaign(args[0], reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s paused\n", args[0])
				return nil
			})
		},
	}
	pause.Flags().StringVar(&reason, "reason", "paused by operator", "Reason recorded on the campaign")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "start <campaign-id>",
			Short: "Start a draft campaign and schedule each lead's first step",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(opts, func(e *Engine) error {
					created, err := e.service.StartCampaign(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s started, %d actions scheduled\n", args[0], created)
					return nil
				})
			},
		},
		pause,
		&cobra.Command{
			Use:   "resume <campaign-id>",
			Short: "Resume a paused campaign",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(opts, func(e *Engine) error {
					n, err := e.service.ResumeCampaign(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s resumed, %d actions pending again\n", args[0], n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "stop <campaign-id>",
			Short: "Stop a campaign for good",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(opts, func(e *Engine) error {
					if err := e.service.StopCampaign(args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s stopped\n", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "retry <campaign-id>",
			Short: "Move failed actions back to pending",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(opts, func(e *Engine) error {
					n, err := e.service.RetryFailedActions(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Campaign %s: %d failed actions reset\n", args[0], n)
					return nil
				})
			},
		},
	)

	return cmd
}

// withEngine runs fn against a wired engine whose consumers are not started
func withEngine(opts *options, fn func(e *Engine) error) error {
	return withApp(opts, func(app *App) error {
		engine, err := NewEngine(app)
		if err != nil {
			return err
		}
		defer engine.Close()
		return fn(engine)
	})
}
