package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/settlement"
)

var (
	directionFlag string
	amountFlag    string
	mintFlag      string
	slippageFlag  uint16
	expectedFlag  string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Simulate a trade on a fresh curve, or on a live one with --mint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		direction, amount, err := tradeFlags()
		if err != nil {
			return err
		}

		if mintFlag == "" {
			state, err := deriveState(supplyFlag)
			if err != nil {
				return err
			}
			outcome, err := curve.SimulateTrade(state, direction, amount, cfg.FeeBps)
			if err != nil {
				return explain(err)
			}
			printOutcome(outcome)
			return nil
		}

		e, closeFn, err := newEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		q, err := e.Quote(cmd.Context(), mintFlag, direction, amount)
		if err != nil {
			return explain(err)
		}
		fmt.Printf("snapshot:     cached=%t\n", q.Cached)
		printOutcome(q.Outcome)
		return nil
	},
}

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Run a full settlement against a live curve",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if mintFlag == "" {
			return errors.New("--mint is required")
		}
		direction, amount, err := tradeFlags()
		if err != nil {
			return err
		}
		req := curve.TradeRequest{
			Direction:            direction,
			InputAmount:          amount,
			SlippageToleranceBps: slippageFlag,
		}
		if expectedFlag != "" {
			if req.ExpectedOutput, err = toUnits(expectedFlag, outputDecimals(direction)); err != nil {
				return err
			}
		}

		e, closeFn, err := newEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		s, err := e.Settle(cmd.Context(), mintFlag, req)
		if err != nil {
			return explain(err)
		}
		printOutcome(s.Outcome)
		fmt.Printf("min output:   %s\n", fromUnits(s.MinOutput, outputDecimals(direction)))
		if s.MarketCap.IsPositive() {
			fmt.Printf("market cap:   %s (graduating=%t)\n", s.MarketCap.StringFixed(2), s.Graduating)
		}
		if s.CurveExhausted {
			fmt.Println("this trade exhausts the curve")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(settleCmd)

	for _, cmd := range []*cobra.Command{quoteCmd, settleCmd} {
		cmd.Flags().StringVarP(&directionFlag, "direction", "d", "buy", "buy or sell")
		cmd.Flags().StringVarP(&amountFlag, "amount", "a", "", "SOL to spend on a buy, tokens to sell on a sell")
		cmd.Flags().StringVar(&mintFlag, "mint", "", "token mint of a live curve")
		_ = cmd.MarkFlagRequired("amount")
	}
	quoteCmd.Flags().StringVar(&supplyFlag, "supply", "", "total supply in whole tokens for an offline quote")
	settleCmd.Flags().Uint16Var(&slippageFlag, "slippage", 100, "slippage tolerance in basis points")
	settleCmd.Flags().StringVar(&expectedFlag, "expected", "", "output the caller was quoted")
}

func tradeFlags() (curve.Direction, uint64, error) {
	direction, err := curve.ParseDirection(directionFlag)
	if err != nil {
		return 0, 0, err
	}
	amount, err := toUnits(amountFlag, inputDecimals(direction))
	if err != nil {
		return 0, 0, err
	}
	return direction, amount, nil
}

func printOutcome(o curve.TradeOutcome) {
	fmt.Printf("direction:    %s\n", o.Direction)
	fmt.Printf("input:        %s\n", fromUnits(o.InputAmount, inputDecimals(o.Direction)))
	fmt.Printf("output:       %s\n", fromUnits(o.OutputAmount, outputDecimals(o.Direction)))
	fmt.Printf("fee:          %s\n", sol(o.FeeAmount))
	fmt.Printf("price impact: %.2f%%\n", float64(o.PriceImpactBps)/100)
	fmt.Printf("new price:    %.12f SOL/token\n", o.NewState.SpotPrice())
}

// explain adds the serviceable amount to liquidity rejections.
func explain(err error) error {
	var liq *curve.LiquidityError
	if errors.As(err, &liq) && liq.MaxInput > 0 {
		return fmt.Errorf("%w (at most %s can be bought now)", err, sol(liq.MaxInput))
	}
	return fmt.Errorf("%s: %w", settlement.Reason(err), err)
}
