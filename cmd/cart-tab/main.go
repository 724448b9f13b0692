package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/cart-sync/internal/adapter/broadcast"
	"github.com/rl1809/cart-sync/internal/adapter/client"
	"github.com/rl1809/cart-sync/internal/adapter/storage"
	"github.com/rl1809/cart-sync/internal/config"
	"github.com/rl1809/cart-sync/internal/core/service"
	"github.com/rl1809/cart-sync/internal/logging"
	"github.com/rl1809/cart-sync/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cart-tab:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	catalog, err := cfg.Products()
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs go to a file.
	logPath := filepath.Join(os.TempDir(), "cart-tab.log")
	logger, err := logging.New(cfg.Log.Development, logPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tabCfg := service.TabConfig{
		StorageKey:        cfg.StorageKey + ":" + cfg.SessionID,
		Topic:             cfg.SyncTopic + ":" + cfg.SessionID,
		SettleDelay:       cfg.SettleDelay,
		IgnoreOwnMessages: cfg.IgnoreOwnMessages,
		Logger:            logger,
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	err = rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		// Without Redis this tab cannot see peers; it still works on its own.
		logger.Warn("redis unavailable, running a standalone tab", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		slot := storage.NewMemoryAdapter()
		tabCfg.Slot = slot
		tabCfg.Watcher = slot
	} else {
		slot := storage.NewRedisAdapter(rdb, cfg.StorageTTL)
		tabCfg.Slot = slot
		tabCfg.Watcher = slot
		if cfg.Broadcast {
			tabCfg.Bus = broadcast.NewRedisBroadcaster(rdb)
		}
	}

	tab, err := service.OpenTab(ctx, tabCfg)
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	defer tab.Close()

	var validator tui.Validator
	vc, err := client.Dial(cfg.GRPCAddr, cfg.ValidationTimeout, logger)
	if err != nil {
		logger.Warn("validation disabled", zap.Error(err))
	} else {
		defer vc.Close()
		validator = vc
	}

	model := tui.New(tab, catalog, validator, cfg.SessionID)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
