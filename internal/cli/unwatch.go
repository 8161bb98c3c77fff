package cli

import (
	"github.com/spf13/cobra"
)

var unwatchCmd = &cobra.Command{
	Use:   "unwatch <product-key>",
	Short: "Remove a product from the watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Unwatch(cmd.Context(), args[0])
	},
}
