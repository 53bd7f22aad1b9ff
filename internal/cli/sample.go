package cli

import (
	"github.com/spf13/cobra"
)

var sampleMode string

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Run one sampling pass and print the JSON summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseMode(sampleMode)
		if err != nil {
			return err
		}
		return getApp().SamplePass(cmd.Context(), mode)
	},
}

func init() {
	sampleCmd.Flags().StringVar(&sampleMode, "mode", "all", "Destination subset: all, tracked, or untracked")
}
