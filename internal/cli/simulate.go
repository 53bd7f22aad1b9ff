package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateDestination string
	simulatePrice       float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Preview classification and gate decisions for a synthetic price",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateDestination == "" {
			return errors.New("--destination is required")
		}
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than 0")
		}

		price := decimal.NewFromFloat(simulatePrice)
		return getApp().SimulateAlert(cmd.Context(), simulateDestination, price)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateDestination, "destination", "", "Destination code")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Synthetic fare to classify")
}
