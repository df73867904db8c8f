package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/engine"
	"github.com/rovshanmuradov/pumpcurve/internal/journal"
	"github.com/rovshanmuradov/pumpcurve/internal/settlement"
)

const simulatedToken = "SimuLatedPumpCurveToken1111111111111111111"

var (
	tradersFlag    int
	workersFlag    int
	raceAmountFlag string
	exportFlag     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a scripted market and a stale-snapshot race on an in-process ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		state, err := deriveState(supplyFlag)
		if err != nil {
			return err
		}
		raceAmount, err := toUnits(raceAmountFlag, curve.BaseDecimals)
		if err != nil {
			return err
		}

		if exportFlag != "" && cfg.JournalDir == "" {
			cfg.JournalDir = "journal"
		}
		e, closeFn, err := newEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		market, err := e.NewMarket(simulatedToken, state.TotalSupply, tradersFlag)
		if err != nil {
			return err
		}

		result, err := market.Run(cmd.Context(), script(tradersFlag), workersFlag)
		if err != nil {
			return err
		}
		fmt.Printf("committed %d, rejected %d, re-settled %d\n",
			result.Committed, result.Rejected, result.Resettled)
		for _, r := range result.Records {
			fmt.Printf("#%-3d %-4s in=%-22s out=%-22s fee=%s\n",
				r.Sequence, r.Outcome.Direction,
				fromUnits(r.Outcome.InputAmount, inputDecimals(r.Outcome.Direction)),
				fromUnits(r.Outcome.OutputAmount, outputDecimals(r.Outcome.Direction)),
				sol(r.Outcome.FeeAmount))
		}
		for _, err := range result.Errors {
			fmt.Printf("rejected: %s (%v)\n", settlement.Reason(err), err)
		}
		printCurve(result.Final, state.RealQuoteReserves)

		race, err := market.Race(cmd.Context(), curve.TradeRequest{Direction: curve.Buy, InputAmount: raceAmount})
		switch {
		case errors.Is(err, curve.ErrCurveClosed):
			fmt.Println("race skipped: the curve closed during the script")
		case err != nil:
			return err
		default:
			fmt.Printf("race of %d traders on one snapshot: %d first attempt, %d re-settled, %d failed\n",
				tradersFlag, race.FirstAttempt, race.Resettled, race.Failed)
		}

		if j := e.Journal(); j != nil {
			stats := j.Statistics()
			log.Info("Journal written",
				zap.String("file", j.Path()),
				zap.Int("committed", stats.Committed),
				zap.String("base_volume", sol(stats.BaseVolume)),
				zap.String("fees", sol(stats.FeesCollected)))

			if exportFlag != "" {
				if _, err := j.Export(journal.ExportOptions{
					Format:    journal.ExportFormat(exportFlag),
					OutputDir: cfg.JournalDir,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&supplyFlag, "supply", "", "total supply in whole tokens")
	simulateCmd.Flags().IntVar(&tradersFlag, "traders", 4, "number of traders")
	simulateCmd.Flags().IntVar(&workersFlag, "workers", 4, "concurrent submitters")
	simulateCmd.Flags().StringVar(&raceAmountFlag, "race-amount", "2", "SOL each trader buys in the race")
	simulateCmd.Flags().StringVar(&exportFlag, "export", "", "export the journal as csv or json")
}

// script is a launch: a wave of buys, profit taking, then a large buy.
func script(traders int) []engine.Trade {
	var trades []engine.Trade
	for i := 0; i < traders*3; i++ {
		trades = append(trades, engine.Trade{
			Trader:      i % traders,
			Direction:   curve.Buy,
			Amount:      uint64(i%3+1) * 500_000_000,
			SlippageBps: 300,
		})
	}
	for i := 0; i < traders; i++ {
		trades = append(trades, engine.Trade{
			Trader:      i,
			Direction:   curve.Sell,
			Amount:      5_000_000_000_000,
			SlippageBps: 300,
		})
	}
	return append(trades, engine.Trade{Trader: 0, Direction: curve.Buy, Amount: 20_000_000_000, SlippageBps: 1000})
}

func printCurve(state curve.ReserveState, initialRealQuote uint64) {
	fmt.Printf("real SOL reserves:   %s\n", sol(state.RealBaseReserves))
	fmt.Printf("real token reserves: %s\n", tokens(state.RealQuoteReserves))
	fmt.Printf("price:               %.12f SOL/token\n", state.SpotPrice())
	fmt.Printf("bonding progress:    %.2f%%\n", curve.Progress(state, initialRealQuote))
	fmt.Printf("complete:            %t\n", state.Complete)
}
