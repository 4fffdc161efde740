package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Terminal/internal/learner"
	"Terminal/internal/model"
	"Terminal/internal/notifier"
	"Terminal/internal/terminal"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// A job running on day T suggests for T-1, the last complete day of metrics,
// and learns T-2, whose batch was acted on during T-1.
const (
	suggestLagDays = 1
	learnLagDays   = 2

	cooldownRetention = 30 * 24 * time.Hour
)

// Service is the part of terminal.Service the scheduler drives.
type Service interface {
	Suggest(ctx context.Context, date string, level model.Level) (*model.Batch, error)
	Learn(ctx context.Context, date string, level model.Level) (*model.LearnReport, error)
	Latest(ctx context.Context, date string, level model.Level) (*model.Batch, error)
	PruneCooldowns(ctx context.Context, keep time.Duration) (int, error)
}

// Sender delivers failure alerts.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Service  Service
	Sender   Sender
	Levels   []model.Level
	Location *time.Location
	Ctx      context.Context
	Now      func() time.Time
	logger   *zap.Logger
}

// NewScheduler creates a new Scheduler. sender may be nil.
func NewScheduler(ctx context.Context, svc Service, sender Sender, levels []model.Level, loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Service:  svc,
		Sender:   sender,
		Levels:   levels,
		Location: loc,
		Ctx:      ctx,
		Now:      time.Now,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

// RegisterAll registers the suggest, learn and cooldown-prune tasks.
func (s *Scheduler) RegisterAll(suggestCron, learnCron, pruneCron string) error {
	if _, err := s.Cron.AddFunc(suggestCron, s.suggestTask); err != nil {
		return fmt.Errorf("register suggest task: %w", err)
	}
	if _, err := s.Cron.AddFunc(learnCron, s.learnTask); err != nil {
		return fmt.Errorf("register learn task: %w", err)
	}
	if _, err := s.Cron.AddFunc(pruneCron, s.pruneTask); err != nil {
		return fmt.Errorf("register prune task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunSuggestNow executes the suggest task immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunSuggestNow() {
	s.suggestTask()
}

func (s *Scheduler) dayOffset(days int) string {
	return s.Now().In(s.Location).AddDate(0, 0, -days).Format(learner.DateLayout)
}

func (s *Scheduler) suggestTask() {
	date := s.dayOffset(suggestLagDays)
	for _, level := range s.Levels {
		s.logger.Info("running suggest task", zap.String("date", date), zap.String("level", string(level)))
		if _, err := s.Service.Suggest(s.Ctx, date, level); err != nil {
			if errors.Is(err, terminal.ErrNotFound) {
				s.logger.Warn("no rows to suggest on", zap.String("date", date), zap.String("level", string(level)))
				continue
			}
			s.logger.Error("suggest failed", zap.String("date", date), zap.String("level", string(level)), zap.Error(err))
			s.trySend(fmt.Sprintf("❌ suggest %s %s failed: %v", date, level, err))
		}
	}
}

func (s *Scheduler) learnTask() {
	date := s.dayOffset(learnLagDays)
	for _, level := range s.Levels {
		s.logger.Info("running learn task", zap.String("date", date), zap.String("level", string(level)))
		_, err := s.Service.Learn(s.Ctx, date, level)
		switch {
		case err == nil:
		case errors.Is(err, terminal.ErrNotReady):
			s.logger.Info("outcomes not ready, will retry on next run", zap.String("date", date), zap.Error(err))
		case errors.Is(err, terminal.ErrNotFound):
			s.logger.Warn("nothing to learn", zap.String("date", date), zap.String("level", string(level)), zap.Error(err))
		default:
			s.logger.Error("learn failed", zap.String("date", date), zap.String("level", string(level)), zap.Error(err))
			s.trySend(fmt.Sprintf("❌ learn %s %s failed: %v", date, level, err))
		}
	}
}

func (s *Scheduler) pruneTask() {
	n, err := s.Service.PruneCooldowns(s.Ctx, cooldownRetention)
	if err != nil {
		s.logger.Error("prune cooldowns failed", zap.Error(err))
		return
	}
	s.logger.Info("cooldowns pruned", zap.Int("removed", n))
}

// HandleCommand processes a chat command ("/summary", "/suggest", "/learn",
// each with optional date and level) and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}
	name := strings.ToLower(fields[0])
	// "/summary@my_bot" in group chats
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}

	lag := suggestLagDays
	if name == "/learn" {
		lag = learnLagDays
	}
	date, level, err := s.parseArgs(fields[1:], lag)
	if err != nil {
		return "⚠️ " + err.Error()
	}

	switch name {
	case "/summary":
		b, err := s.Service.Latest(ctx, date, level)
		if err != nil {
			return fmt.Sprintf("⚠️ %s %s: %v", date, level, err)
		}
		return notifier.FormatBatch(b, 10)
	case "/suggest":
		b, err := s.Service.Suggest(ctx, date, level)
		if err != nil {
			return fmt.Sprintf("⚠️ suggest %s %s: %v", date, level, err)
		}
		// the service already notified the chat
		s.logger.Info("suggest via command", zap.String("batch_id", b.BatchID))
		return ""
	case "/learn":
		_, err := s.Service.Learn(ctx, date, level)
		if errors.Is(err, terminal.ErrNotReady) {
			return fmt.Sprintf("⏳ outcomes for %s not ready yet: %v", date, err)
		}
		if err != nil {
			return fmt.Sprintf("⚠️ learn %s %s: %v", date, level, err)
		}
		return ""
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) parseArgs(args []string, lagDays int) (string, model.Level, error) {
	date := s.dayOffset(lagDays)
	level := model.LevelAdset
	if len(s.Levels) > 0 {
		level = s.Levels[0]
	}
	for _, a := range args {
		if lv, ok := model.ParseLevel(strings.ToLower(a)); ok {
			level = lv
			continue
		}
		if _, err := time.Parse(learner.DateLayout, a); err == nil {
			date = a
			continue
		}
		return "", "", fmt.Errorf("unrecognised argument %q (want YYYY-MM-DD or adset/campaign)", a)
	}
	return date, level, nil
}

func (s *Scheduler) trySend(text string) {
	if s.Sender == nil {
		return
	}
	if err := s.Sender.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.logger.Error("send notification failed", zap.Error(err))
	}
}
