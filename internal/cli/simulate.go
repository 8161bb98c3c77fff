package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"dealwatch/internal/app"
)

var (
	simulateKey     string
	simulateName    string
	simulateChannel string
	simulateOld     string
	simulateNew     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a fabricated price drop through the configured sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateKey == "" || simulateOld == "" || simulateNew == "" {
			return errors.New("--key, --old and --new must be provided")
		}

		opts := app.SimulateOptions{
			Key:     simulateKey,
			Name:    simulateName,
			Channel: simulateChannel,
			Old:     simulateOld,
			New:     simulateNew,
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateKey, "key", "", "Product key for the fabricated alert")
	simulateCmd.Flags().StringVar(&simulateName, "name", "", "Display name (defaults to the key)")
	simulateCmd.Flags().StringVar(&simulateChannel, "channel", "retail", "Price channel")
	simulateCmd.Flags().StringVar(&simulateOld, "old", "", "Old price")
	simulateCmd.Flags().StringVar(&simulateNew, "new", "", "New price")
}
