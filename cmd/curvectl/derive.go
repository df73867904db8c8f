package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

var supplyFlag string

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive the initial reserves of a curve for a total supply",
	RunE: func(*cobra.Command, []string) error {
		state, err := deriveState(supplyFlag)
		if err != nil {
			return err
		}

		fmt.Printf("total supply:           %s\n", tokens(state.TotalSupply))
		fmt.Printf("scaling factor:         %.6f\n", curve.ScalingFactor(state.TotalSupply, cfg.Curve))
		fmt.Printf("virtual SOL reserves:   %s\n", sol(state.VirtualBaseReserves))
		fmt.Printf("virtual token reserves: %s\n", tokens(state.VirtualQuoteReserves))
		fmt.Printf("real token reserves:    %s\n", tokens(state.RealQuoteReserves))
		fmt.Printf("initial price:          %.12f SOL/token\n", state.SpotPrice())
		fmt.Printf("SOL to fill the curve:  %s\n", sol(curve.MaxBuyInput(state, cfg.FeeBps)))
		return nil
	},
}

func init() {
	deriveCmd.Flags().StringVar(&supplyFlag, "supply", "", "total supply in whole tokens (default: the configured curve)")
}

// deriveState scales the configured default curve to supply whole tokens.
func deriveState(supply string) (curve.ReserveState, error) {
	totalSupply := cfg.Curve.TotalSupply
	if supply != "" {
		units, err := toUnits(supply, curve.QuoteDecimals)
		if err != nil {
			return curve.ReserveState{}, err
		}
		totalSupply = units
	}
	if err := curve.ValidateTotalSupply(totalSupply, cfg.MinTotalSupply); err != nil {
		return curve.ReserveState{}, err
	}
	return curve.Derive(totalSupply, cfg.Curve)
}
