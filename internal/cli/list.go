package cli

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show all watched products and their last known prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().List(cmd.Context())
	},
}
