package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <product-key> [name...]",
	Short: "Add a product to the watchlist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		nameHint := strings.Join(args[1:], " ")
		return getApp().Watch(cmd.Context(), key, nameHint)
	},
}
