package main

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"windowtrader/internal/backtest"
	"windowtrader/internal/config"
	"windowtrader/internal/machine"
	"windowtrader/internal/paper"
	sig "windowtrader/internal/signal"
	"windowtrader/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	candlesPath := flag.String("candles", "", "JSON file of 1-minute candles")
	signalsPath := flag.String("signals", "", "JSON file of historical signals")
	style := flag.String("style", "", "tick style override: close | ohlcPath")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	if *candlesPath == "" {
		log.Fatal().Msg("-candles is required")
	}
	candles, err := backtest.LoadCandles(*candlesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load candles")
	}
	var signals []sig.Signal
	if *signalsPath != "" {
		signals, err = backtest.LoadSignals(*signalsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load signals")
		}
	}

	tickStyle := backtest.TickStyle(cfg.Backtest.TickStyle)
	if *style != "" {
		tickStyle = backtest.TickStyle(*style)
	}

	driver := backtest.NewDriver(backtest.Config{
		Machine: machine.Config{
			Window:         time.Duration(cfg.Trading.WindowMs) * time.Millisecond,
			EntryOffset:    cfg.Trading.EntryOffset,
			ExitOffset:     cfg.Trading.ExitOffset,
			StopLossPoints: cfg.Trading.StopLossPoints,
			PriceIncrement: cfg.Trading.PriceIncrement,
			EntryTTL:       time.Duration(cfg.Trading.EntryTTLMs) * time.Millisecond,
		},
		Router: machine.RouterConfig{
			PricePolicy: machine.PricePolicy(cfg.Trading.MissingPrice),
			PriceWait:   time.Duration(cfg.Trading.PriceWaitMs) * time.Millisecond,
		},
		Capital:   cfg.Trading.Capital,
		LotSizes:  cfg.Trading.LotSizes,
		Brokerage: paper.BrokeragePolicy(cfg.Trading.BrokeragePolicy),
		Rate:      cfg.Trading.BrokerageRate,
		TickStyle: tickStyle,
	}, log)

	report, err := driver.Run(candles, signals)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	log.Info().Int("events", report.Events).Int("trades", len(report.Trades)).
		Float64("realized_gross", report.PnL.RealizedGross).
		Float64("brokerage", report.PnL.Brokerage).
		Float64("total", report.PnL.Total).Msg("backtest complete")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}
