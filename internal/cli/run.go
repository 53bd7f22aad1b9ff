package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"farewatch/internal/storage"
)

var runMode string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseMode(runMode)
		if err != nil {
			return err
		}
		return getApp().Run(cmd.Context(), mode)
	},
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "all", "Destination subset: all, tracked, or untracked")
}

func parseMode(v string) (storage.Mode, error) {
	switch storage.Mode(v) {
	case storage.ModeAll, storage.ModeTracked, storage.ModeUntracked:
		return storage.Mode(v), nil
	}
	return "", fmt.Errorf("unknown mode %q (expected all, tracked, or untracked)", v)
}
