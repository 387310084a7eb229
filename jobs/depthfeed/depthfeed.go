// Package depthfeed publishes periodic order-book depth snapshots. It is
// fire-and-forget market data: a missed tick is replaced by the next one,
// so snapshots bypass the durable outbox and go straight to Kafka.
package depthfeed

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tomb.v2"

	"scalex/domain/orderbook"
	"scalex/infra/kafka"
	"scalex/service"
)

const defaultDepth = 20

// Snapshot is the published depth document for one pool.
type Snapshot struct {
	Pool string       `json:"pool"`
	Time int64        `json:"time"`
	Bids []LevelEntry `json:"bids"`
	Asks []LevelEntry `json:"asks"`
}

type LevelEntry struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
	Orders int   `json:"orders"`
}

type Feed struct {
	log      *zap.Logger
	router   *service.Router
	pools    []string
	producer *kafka.Producer
	interval time.Duration
	tomb     tomb.Tomb
}

func New(log *zap.Logger, router *service.Router, pools []string, producer *kafka.Producer, interval time.Duration) *Feed {
	return &Feed{
		log:      log,
		router:   router,
		pools:    pools,
		producer: producer,
		interval: interval,
	}
}

func (f *Feed) Start() {
	f.tomb.Go(f.loop)
}

func (f *Feed) loop() error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.tomb.Dying():
			return nil
		case <-ticker.C:
			f.publishAll()
		}
	}
}

func (f *Feed) publishAll() {
	ctx, cancel := context.WithTimeout(f.tomb.Context(nil), f.interval)
	defer cancel()

	for _, pool := range f.pools {
		bids, asks, err := f.router.Depth(pool, defaultDepth)
		if err != nil {
			f.log.Warn("depth snapshot failed", zap.String("pool", pool), zap.Error(err))
			continue
		}
		snap := Snapshot{
			Pool: pool,
			Time: time.Now().UnixNano(),
			Bids: levelEntries(bids),
			Asks: levelEntries(asks),
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			f.log.Error("depth snapshot marshal failed", zap.Error(err))
			continue
		}
		if err := f.producer.Send(ctx, pool, payload); err != nil {
			f.log.Warn("depth publish failed", zap.String("pool", pool), zap.Error(err))
		}
	}
}

func levelEntries(levels []orderbook.LevelQuote) []LevelEntry {
	out := make([]LevelEntry, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, LevelEntry{Price: lvl.Price, Volume: lvl.Volume, Orders: lvl.Orders})
	}
	return out
}

func (f *Feed) Stop() error {
	f.tomb.Kill(nil)
	return f.tomb.Wait()
}
