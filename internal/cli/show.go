package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"farewatch/internal/app"
)

var (
	showDestination string
	showLimit       int
	showAlerts      bool
	showFailedJobs  bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent samples, alerts, or failed jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if showAlerts && showFailedJobs {
			return fmt.Errorf("--alerts and --failed-jobs are mutually exclusive")
		}

		opts := app.ShowOptions{
			Destination: showDestination,
			Limit:       showLimit,
			Alerts:      showAlerts,
			FailedJobs:  showFailedJobs,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showDestination, "destination", "", "Destination code to show samples for")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Show recent alerts instead of samples")
	showCmd.Flags().BoolVar(&showFailedJobs, "failed-jobs", false, "Show permanently failed notification jobs")
}
