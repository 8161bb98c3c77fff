package cli

import (
	"github.com/spf13/cobra"
)

var priceCmd = &cobra.Command{
	Use:   "price <product-key>",
	Short: "Check the current price without adding to the watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Price(cmd.Context(), args[0])
	},
}
