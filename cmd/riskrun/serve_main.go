package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/riskrun/internal/ops"
	"github.com/sawpanic/riskrun/internal/store"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var latest ops.LatestReader
	if cfg.Store.RedisAddr != "" {
		cache := store.NewRedisCache(cfg.Store.RedisAddr, cfg.Store.RedisDB,
			time.Duration(cfg.Store.CacheTTLSec)*time.Second)
		defer cache.Close()
		latest = cache
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return ops.NewServer(cfg.Ops.ListenAddr, latest).ListenAndServe(ctx)
}
