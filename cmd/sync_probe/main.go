package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cart-sync/internal/adapter/broadcast"
	"github.com/rl1809/cart-sync/internal/adapter/storage"
	"github.com/rl1809/cart-sync/internal/config"
	"github.com/rl1809/cart-sync/internal/core/domain"
	"github.com/rl1809/cart-sync/internal/core/service"
	"github.com/rl1809/cart-sync/internal/logging"
)

const (
	tabCount     = 8
	burstPerTab  = 5
	pollInterval = 2 * time.Millisecond
	waitLimit    = 2 * time.Second
)

var probeProduct = domain.Product{
	ID:       "probe-1",
	Name:     "Probe Item",
	Price:    decimal.RequireFromString("1.00"),
	ImageRef: "https://img.example.com/probe-1.png",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	defer rdb.Close()

	// Isolate this run from real sessions
	run := uuid.NewString()
	slot := storage.NewRedisAdapter(rdb, time.Minute)
	tabCfg := service.TabConfig{
		Slot:              slot,
		Watcher:           slot,
		StorageKey:        "probe:" + run,
		Topic:             "probe:" + run,
		SettleDelay:       cfg.SettleDelay,
		IgnoreOwnMessages: true,
		Logger:            logger.Named("tab"),
	}
	if cfg.Broadcast {
		tabCfg.Bus = broadcast.NewRedisBroadcaster(rdb)
	}
	defer slot.DeleteCart(ctx, tabCfg.StorageKey)

	tabs := make([]*service.Tab, 0, tabCount)
	for i := 0; i < tabCount; i++ {
		tab, err := service.OpenTab(ctx, tabCfg)
		if err != nil {
			logger.Fatal("failed to open tab", zap.Int("tab", i), zap.Error(err))
		}
		defer tab.Close()
		tabs = append(tabs, tab)
	}

	// Phase 1: one writer, everyone else must see it within the settle delay
	start := time.Now()
	tabs[0].Store.AddLine(ctx, probeProduct)

	var wg sync.WaitGroup
	latencies := make([]time.Duration, tabCount)
	for i := 1; i < tabCount; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			latencies[i] = waitFor(func() bool {
				line, ok := tabs[i].Store.Snapshot().Line(probeProduct.ID)
				return ok && line.Quantity == 1
			}, start)
		}(i)
	}
	wg.Wait()

	converged := 0
	var slowest time.Duration
	for _, l := range latencies[1:] {
		if l >= 0 && l <= cfg.SettleDelay {
			converged++
		}
		slowest = max(slowest, l)
	}

	// Phase 2: every tab writes at once; all tabs must end on one state
	burstStart := time.Now()
	for _, tab := range tabs {
		wg.Add(1)
		go func(tab *service.Tab) {
			defer wg.Done()
			for j := 0; j < burstPerTab; j++ {
				tab.Store.AddLine(ctx, probeProduct)
			}
		}(tab)
	}
	wg.Wait()

	settled := waitFor(func() bool {
		want := tabs[0].Store.TotalItems()
		for _, tab := range tabs[1:] {
			if tab.Store.TotalItems() != want {
				return false
			}
		}
		for _, tab := range tabs {
			if tab.Sync.State() != service.SyncIdle {
				return false
			}
		}
		return true
	}, burstStart)

	fmt.Println("========== SYNC PROBE RESULTS ==========")
	fmt.Printf("Tabs:              %d\n", tabCount)
	fmt.Printf("Broadcast:         %v\n", cfg.Broadcast)
	fmt.Printf("Settle Delay:      %v\n", cfg.SettleDelay)
	fmt.Printf("Converged In Time: %d/%d\n", converged, tabCount-1)
	fmt.Printf("Slowest Tab:       %v\n", slowest)
	fmt.Printf("Burst Settled:     %v\n", settled)
	fmt.Printf("Final Quantity:    %d\n", tabs[0].Store.TotalItems())
	fmt.Println("=========================================")

	if converged == tabCount-1 {
		fmt.Println("PASS: every tab saw the change within the settle delay")
	} else {
		fmt.Printf("FAIL: %d tabs missed the settle delay\n", tabCount-1-converged)
	}
	if settled >= 0 {
		fmt.Println("PASS: all tabs agree after concurrent writes")
	} else {
		fmt.Println("FAIL: tabs disagree after concurrent writes")
	}
}

// waitFor polls cond and returns the time since start when it held, or -1.
func waitFor(cond func() bool, start time.Time) time.Duration {
	deadline := start.Add(waitLimit)
	for time.Now().Before(deadline) {
		if cond() {
			return time.Since(start)
		}
		time.Sleep(pollInterval)
	}
	return -1
}
