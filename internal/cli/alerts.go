package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dealwatch/internal/app"
)

var (
	alertsLimit int
	alertsPrune time.Duration
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Display recently dispatched alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if alertsPrune < 0 {
			return fmt.Errorf("--prune-older-than cannot be negative")
		}

		opts := app.AlertsOptions{
			Limit:          alertsLimit,
			PruneOlderThan: alertsPrune,
		}

		return getApp().Alerts(cmd.Context(), opts)
	},
}

func init() {
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 20, "Number of alerts to display")
	alertsCmd.Flags().DurationVar(&alertsPrune, "prune-older-than", 0, "Delete audit rows older than this before listing (e.g. 720h)")
}
