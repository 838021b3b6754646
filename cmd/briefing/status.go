package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/briefing/internal/status"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show each pipeline's report counts and stuck runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireUser(flags); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			sum, err := status.Load(ctx, a.store, flags.UserID, time.Now(), a.cfg.Status.StuckAfter)
			if err != nil {
				return err
			}
			status.Print(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}
