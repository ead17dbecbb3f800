package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/riskrun/internal/alerts"
	"github.com/sawpanic/riskrun/internal/config"
	"github.com/sawpanic/riskrun/internal/engine"
	"github.com/sawpanic/riskrun/internal/fusion"
	"github.com/sawpanic/riskrun/internal/lifecycle"
	"github.com/sawpanic/riskrun/internal/risk"
	"github.com/sawpanic/riskrun/internal/store"
)

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func buildEngine(cfg *config.Config, deps engine.Deps) *engine.Engine {
	monitor := risk.NewCorrelationMonitor(cfg.Correlation)
	return engine.New(
		monitor,
		risk.NewController(cfg.Risk, monitor),
		risk.NewReEntryManager(cfg.ReEntry),
		lifecycle.NewManager(cfg.Lifecycle),
		fusion.NewEngine(cfg.Fusion),
		deps,
	)
}

func runCycle(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	inputPath, _ := cmd.Flags().GetString("input")
	persist, _ := cmd.Flags().GetBool("persist")

	b, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read cycle input: %w", err)
	}
	var input engine.CycleInput
	if err := json.Unmarshal(b, &input); err != nil {
		return fmt.Errorf("parse cycle input: %w", err)
	}
	if input.Now.IsZero() {
		input.Now = time.Now().UTC()
	}

	// Metrics are wired only by long-lived hosts that also serve the ops
	// endpoint; a one-shot run exits before anything could scrape them.
	deps := engine.Deps{
		Alerter: alerts.NewDispatcher(cfg.Alerts.WebhookURL, cfg.Alerts.RatePerMinute),
	}
	if persist {
		pg, err := store.NewPostgresStore(cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		deps.Store = pg

		cache := store.NewRedisCache(cfg.Store.RedisAddr, cfg.Store.RedisDB,
			time.Duration(cfg.Store.CacheTTLSec)*time.Second)
		defer cache.Close()
		deps.Cache = cache
	}

	result, err := buildEngine(cfg, deps).RunCycle(cmd.Context(), input)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	log.Info().Int("level", int(result.Assessment.Level)).Msg("Cycle finished")
	return nil
}
