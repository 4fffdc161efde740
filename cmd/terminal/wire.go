package main

import (
	"fmt"

	"Terminal/internal/collector"
	"Terminal/internal/config"
	"Terminal/internal/learner"
	"Terminal/internal/notifier"
	"Terminal/internal/policy"
	"Terminal/internal/recorder"
	"Terminal/internal/state"
	"Terminal/internal/strategy"
	"Terminal/internal/terminal"

	"go.uber.org/zap"
)

// app is the wired service plus what has to be closed on exit.
type app struct {
	svc      *terminal.Service
	telegram *notifier.TelegramNotifier
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	var lanes strategy.LaneResolver
	if cfg.LanesFile != "" {
		w, err := policy.NewWatcher(cfg.LanesFile, logger)
		if err != nil {
			return nil, fmt.Errorf("load lanes: %w", err)
		}
		w.OnReload(func(t *policy.Table) {
			logger.Info("lane table in effect", zap.Int64("version", t.Version))
		})
		a.closers = append(a.closers, w.Close)
		lanes = w
	} else {
		t, err := policy.Merge(cfg.Lanes)
		if err != nil {
			return nil, fmt.Errorf("merge lanes: %w", err)
		}
		lanes = t
	}

	strat, err := strategy.Parse(cfg.Engine.Strategy, cfg.Engine.UCBExploration)
	if err != nil {
		return nil, err
	}
	minUpdates := cfg.Engine.MinUpdates
	engine := strategy.NewEngine(lanes, strat, strategy.Options{
		Confidence: strategy.ConfidenceOptions{
			MinUpdates: &minUpdates,
			MaxSigma:   cfg.Engine.MaxSigma,
		},
		PolicyVersion: cfg.Engine.PolicyVersion,
	})

	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init sqlite recorder: %w", err)
		}
		a.closers = append(a.closers, sr.Close)
		rec = sr
	} else {
		logger.Warn("database.sqlite_path not set, batches are kept in memory only")
		rec = recorder.NewMemoryRecorder()
	}

	var col *collector.Collector
	if cfg.Source.BaseURL != "" {
		col = collector.NewCollector(collector.NewHTTPSource(cfg.Source.BaseURL, cfg.Source.APIKey, cfg.Proxy), logger)
	} else {
		logger.Warn("source.base_url not set, only preview is available")
	}

	cutoff, err := learner.ParseCutoff(cfg.Learner.Cutoff)
	if err != nil {
		a.Close()
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := terminal.Deps{
		Engine:          engine,
		Store:           state.NewStore(state.NewFileRepository(cfg.State.PolicyFile, cfg.State.CooldownFile)),
		Recorder:        rec,
		Collector:       col,
		Learner:         learner.New(cfg.Learner.HalfLifeDays),
		Gate:            learner.Gate{Cutoff: cutoff, Location: loc},
		Logger:          logger,
		CooldownSpacing: cfg.CooldownSpacing(),
	}
	if cfg.TelegramEnabled() {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		deps.Notifier = a.telegram
	}
	a.svc = terminal.New(deps)

	logger.Info("terminal wired",
		zap.String("strategy", strat.Name()),
		zap.String("policy_version", engine.PolicyVersion()),
		zap.Duration("cooldown", cfg.CooldownSpacing()))
	return a, nil
}
