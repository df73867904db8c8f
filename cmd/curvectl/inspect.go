package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/engine"
)

var (
	intervalFlag    time.Duration
	metricsAddrFlag string
	historyFlag     time.Duration
)

var inspectCmd = &cobra.Command{
	Use:   "inspect MINT...",
	Short: "Read live bonding curves over RPC",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, mints []string) error {
		e, closeFn, err := newEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		views, err := e.Inspect(cmd.Context(), mints)
		if err != nil {
			return err
		}
		if len(views) == 0 {
			return errors.New("no bonding curves found")
		}
		for _, v := range views {
			printView(v)
			if historyFlag > 0 {
				points, err := e.PriceHistory(cmd.Context(), v.TokenID, time.Now().Add(-historyFlag))
				if err != nil {
					log.Warn("Price history unavailable", zap.Error(err))
					continue
				}
				for _, p := range points {
					fmt.Printf("  %s  %.12f\n", p.At.Format(time.TimeOnly), p.Price)
				}
			}
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch MINT...",
	Short: "Poll live bonding curves and record their prices",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, mints []string) error {
		e, closeFn, err := newEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		if metricsAddrFlag != "" {
			srv := &http.Server{
				Addr:              metricsAddrFlag,
				Handler:           promhttp.HandlerFor(e.Gatherer(), promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Metrics server failed", zap.Error(err))
				}
			}()
			defer srv.Close()
			log.Info("Serving metrics", zap.String("addr", metricsAddrFlag))
		}

		return e.Watch(cmd.Context(), mints, intervalFlag, func(views []engine.CurveView) {
			for _, v := range views {
				log.Info("Curve",
					zap.String("token", v.TokenID),
					zap.Float64("price", v.SpotPrice),
					zap.Float64("progress", v.Progress),
					zap.String("market_cap", v.MarketCap.StringFixed(2)),
					zap.Bool("graduating", v.Graduating),
					zap.Bool("complete", v.State.Complete))
			}
		})
	},
}

var globalCmd = &cobra.Command{
	Use:   "global",
	Short: "Read the program's launch constants from chain",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, closeFn, err := newEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		g, err := e.Global(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("initialized:            %t\n", g.Initialized)
		fmt.Printf("authority:              %s\n", g.Authority)
		fmt.Printf("fee recipient:          %s\n", g.FeeRecipient)
		fmt.Printf("fee:                    %d bps\n", g.FeeBps)
		fmt.Printf("virtual SOL reserves:   %s\n", sol(g.Curve.VirtualBaseReserves))
		fmt.Printf("virtual token reserves: %s\n", tokens(g.Curve.VirtualQuoteReserves))
		fmt.Printf("total supply:           %s\n", tokens(g.Curve.TotalSupply))
		fmt.Printf("curve allocation:       %d bps\n", g.Curve.CurveAllocationBps)
		if g.Curve != cfg.Curve || g.FeeBps != cfg.FeeBps {
			log.Warn("On-chain constants differ from configuration")
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().DurationVar(&historyFlag, "history", 0, "also print recorded prices for this long back (needs redis_addr)")
	watchCmd.Flags().DurationVar(&intervalFlag, "interval", 5*time.Second, "poll interval")
	watchCmd.Flags().StringVar(&metricsAddrFlag, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func printView(v engine.CurveView) {
	fmt.Printf("%s\n", v.TokenID)
	fmt.Printf("  price:        %.12f SOL/token\n", v.SpotPrice)
	fmt.Printf("  progress:     %.2f%%\n", v.Progress)
	fmt.Printf("  supply:       %s (x%.4f)\n", tokens(v.State.TotalSupply), v.Scaling)
	fmt.Printf("  real SOL:     %s\n", sol(v.State.RealBaseReserves))
	fmt.Printf("  real tokens:  %s\n", tokens(v.State.RealQuoteReserves))
	if v.PriceKnown {
		fmt.Printf("  market cap:   %s (graduating=%t)\n", v.MarketCap.StringFixed(2), v.Graduating)
	}
	if v.State.Complete {
		fmt.Println("  complete: trading moved off the curve")
	} else {
		fmt.Printf("  fill budget:  %s\n", sol(curve.MaxBuyInput(v.State, cfg.FeeBps)))
	}
}
