package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"Terminal/internal/collector"
	"Terminal/internal/learner"
	"Terminal/internal/model"
	"Terminal/internal/scheduler"
	"Terminal/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagDate   string
	flagLevel  string
	flagIDs    []string
	flagRows   string
	runOnStart bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the daily cron jobs and Telegram commands",
	RunE:  runServe,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Simulate decisions for a rows file without reading or writing state",
	Long: `Reads a JSON array of performance rows from --rows (or stdin with "-") and
prints the decisions a capped, stateless simulation would make.`,
	RunE: runPreview,
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Collect rows, decide with learned state and persist a batch",
	RunE:  runSuggest,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write cooldowns for the non-hold decisions of the latest batch",
	RunE:  runApply,
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Fold realized outcomes into learned entity state",
	RunE:  runLearn,
}

func init() {
	for _, c := range []*cobra.Command{previewCmd, suggestCmd, applyCmd, learnCmd} {
		c.Flags().StringVar(&flagDate, "date", "", "Date as YYYY-MM-DD (default: yesterday, two days ago for learn)")
		c.Flags().StringVar(&flagLevel, "level", string(model.LevelAdset), "Entity level (adset or campaign)")
	}
	applyCmd.Flags().StringSliceVar(&flagIDs, "ids", nil, "Only apply these entity ids")
	previewCmd.Flags().StringVar(&flagRows, "rows", "-", "Rows JSON file, - for stdin")
	serveCmd.Flags().BoolVar(&runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "Run the suggest job once at startup")
}

func dateOr(daysAgo int) string {
	if flagDate != "" {
		return flagDate
	}
	return time.Now().AddDate(0, 0, -daysAgo).Format(learner.DateLayout)
}

func level() model.Level {
	return model.Level(strings.ToLower(strings.TrimSpace(flagLevel)))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runPreview(cmd *cobra.Command, _ []string) error {
	var (
		data []byte
		err  error
	)
	if flagRows == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(flagRows)
	}
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	raws, err := collector.DecodeRows(data)
	if err != nil {
		return err
	}
	rows, err := collector.CoerceRows(raws, level())
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	batch, err := a.svc.Preview(dateOr(1), level(), rows)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), batch)
}

func runSuggest(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	batch, err := a.svc.Suggest(cmd.Context(), dateOr(1), level())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), batch)
}

func runApply(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	rep, err := a.svc.Apply(cmd.Context(), dateOr(1), level(), flagIDs)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rep)
}

func runLearn(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	rep, err := a.svc.Learn(cmd.Context(), dateOr(2), level())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rep)
}

func runServe(cmd *cobra.Command, _ []string) error {
	log.Info("terminal starting")
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	levels, err := cfg.Levels()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	var sender scheduler.Sender
	if a.telegram != nil {
		sender = a.telegram
	}
	sched := scheduler.NewScheduler(ctx, a.svc, sender, levels, loc, log)
	if err := sched.RegisterAll(cfg.Schedule.SuggestCron, cfg.Schedule.LearnCron, cfg.Schedule.PruneCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if a.telegram != nil {
		go a.telegram.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}
	if runOnStart {
		log.Info("run-on-start enabled, executing suggest task now")
		go sched.RunSuggestNow()
	}

	srv := server.NewServer(server.Config{Addr: cfg.Server.Addr, Service: a.svc, Logger: log})
	log.Info("terminal is running", zap.String("addr", srv.Addr()))
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("terminal stopped")
	return nil
}
