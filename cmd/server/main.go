package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"scalex/api/httpapi"
	"scalex/config"
	"scalex/domain/orderbook"
	"scalex/infra/journal"
	"scalex/infra/kafka"
	"scalex/infra/ledger"
	"scalex/infra/outbox"
	"scalex/jobs/broadcaster"
	"scalex/jobs/depthfeed"
	"scalex/service"
)

func main() {
	cfg := config.MustLoad()

	log := mustLogger(cfg.Env)
	defer log.Sync() //nolint:errcheck

	// ---------------- Command journal ----------------

	cmdlog, err := journal.Open(journal.Config{
		Dir:         cfg.Journal.Dir,
		SegmentSize: cfg.Journal.SegmentSize,
	})
	if err != nil {
		log.Fatal("journal open failed", zap.Error(err))
	}
	defer cmdlog.Close()

	// ---------------- Event outbox ----------------

	events, err := outbox.Open(cfg.Outbox.Dir)
	if err != nil {
		log.Fatal("outbox open failed", zap.Error(err))
	}
	defer events.Close()

	// ---------------- Pools ----------------

	pools := make([]orderbook.Config, 0, len(cfg.Pools))
	for _, p := range cfg.Pools {
		pools = append(pools, orderbook.Config{
			PoolID:      p.ID,
			BaseAsset:   p.BaseAsset,
			QuoteAsset:  p.QuoteAsset,
			TickSize:    p.TickSize,
			LotSize:     p.LotSize,
			MinQuantity: p.MinQuantity,
			MaxQuantity: p.MaxQuantity,
			BaseUnit:    p.BaseUnit,
		})
	}
	registry, err := service.NewRegistry(pools)
	if err != nil {
		log.Fatal("invalid pool config", zap.Error(err))
	}

	// ---------------- Router ----------------

	bank := ledger.New()
	router := service.NewRouter(log, registry, bank, bank, cmdlog, events)

	if err := router.Replay(cfg.Journal.Dir); err != nil {
		log.Fatal("journal replay failed", zap.Error(err))
	}

	// ---------------- Jobs ----------------

	bcast, err := broadcaster.New(log, events, cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	if err != nil {
		log.Fatal("broadcaster init failed", zap.Error(err))
	}
	bcast.Start()
	defer bcast.Stop() //nolint:errcheck

	depthProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DepthTopic)
	defer depthProducer.Close()

	feed := depthfeed.New(log, router, registry.IDs(), depthProducer, cfg.Depthfeed.Interval)
	feed.Start()
	defer feed.Stop() //nolint:errcheck

	pruneDone := make(chan struct{})
	go pruneLoop(log, router, cfg.History, pruneDone)
	defer close(pruneDone)

	// ---------------- HTTP ----------------

	handler := httpapi.New(log, router)
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	if err := cmdlog.Sync(); err != nil {
		log.Error("journal sync failed", zap.Error(err))
	}
}

func pruneLoop(log *zap.Logger, router *service.Router, cfg config.HistoryConfig, done <-chan struct{}) {
	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n := router.PruneHistory(cfg.Retention); n > 0 {
				log.Debug("pruned order history", zap.Int("orders", n))
			}
		}
	}
}

func mustLogger(env string) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if env == "local" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}
