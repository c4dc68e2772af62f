package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"windowtrader/internal/config"
	"windowtrader/internal/engine"
	"windowtrader/internal/feed"
	"windowtrader/internal/hours"
	"windowtrader/internal/machine"
	"windowtrader/internal/metrics"
	"windowtrader/internal/paper"
	sig "windowtrader/internal/signal"
	"windowtrader/internal/store"
	"windowtrader/internal/util"
	"windowtrader/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	days, err := cfg.Market.Weekdays()
	if err != nil {
		log.Fatal().Err(err).Msg("market days")
	}
	gate, err := hours.New(hours.Config{
		Timezone:    cfg.Market.Timezone,
		Days:        days,
		Open:        cfg.Market.Start,
		Close:       cfg.Market.End,
		Holidays:    cfg.Market.Holidays,
		ForceOpen:   cfg.Market.ForceOpen,
		ForceClosed: cfg.Market.ForceClosed,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("market hours gate")
	}

	opts := engine.Options{
		Gate: gate,
		Machine: machine.Config{
			Window:         time.Duration(cfg.Trading.WindowMs) * time.Millisecond,
			EntryOffset:    cfg.Trading.EntryOffset,
			ExitOffset:     cfg.Trading.ExitOffset,
			StopLossPoints: cfg.Trading.StopLossPoints,
			PriceIncrement: cfg.Trading.PriceIncrement,
			EntryTTL:       time.Duration(cfg.Trading.EntryTTLMs) * time.Millisecond,
		},
		Router: machine.RouterConfig{
			AllowAfterHours: cfg.Trading.AllowAfterHours,
			PricePolicy:     machine.PricePolicy(cfg.Trading.MissingPrice),
			PriceWait:       time.Duration(cfg.Trading.PriceWaitMs) * time.Millisecond,
		},
		Capital:   cfg.Trading.Capital,
		LotSizes:  cfg.Trading.LotSizes,
		Brokerage: paper.BrokeragePolicy(cfg.Trading.BrokeragePolicy),
		Rate:      cfg.Trading.BrokerageRate,
	}

	if cfg.Store.Enabled {
		snapshots, err := store.Open(cfg.Store.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("open snapshot store")
		}
		defer snapshots.Close()
		seeds, err := snapshots.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("load snapshots")
		}
		opts.Snapshots = snapshots
		opts.Seeds = seeds
		log.Info().Int("machines", len(seeds)).Str("path", cfg.Store.Path).Msg("snapshots loaded")
	}

	if cfg.Paper.JournalPath != "" {
		journal, err := paper.OpenJournal(cfg.Paper.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open trade journal")
		}
		defer journal.Close()
		opts.Journal = journal
	}

	eng := engine.New(opts, log)

	hook := webhook.NewServer(eng, log)
	_ = hook.Serve(cfg.App.WebhookAddr)
	log.Info().Str("addr", cfg.App.WebhookAddr).Msg("webhook up")

	ticks := make(chan sig.Tick, 1024)
	source := feed.NewFeed(cfg.Feed.Provider, cfg.Feed.Symbols, log,
		feed.WithWebsocketURL(cfg.Feed.WebsocketURL))
	go func() {
		if err := source.Run(ctx, ticks); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tk := <-ticks:
				eng.IngestTick(tk)
			}
		}
	}()

	log.Info().Msg("paper engine started")
	eng.Run(ctx)
}
