package cli

import (
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one notification dispatch sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DispatchOnce(cmd.Context())
	},
}
