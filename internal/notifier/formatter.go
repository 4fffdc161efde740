package notifier

import (
	"fmt"
	"html"
	"strings"

	"Terminal/internal/model"
)

var actionIcon = map[model.Action]string{
	model.ActionBump: "🟢",
	model.ActionTrim: "🔴",
	model.ActionHold: "⚪",
}

// FormatBatch formats a decision batch into a Telegram message listing at most
// topN non-hold decisions in rank order.
func FormatBatch(b *model.Batch, topN int) string {
	var sb strings.Builder
	s := b.Summary

	sb.WriteString(fmt.Sprintf("📊 <b>Terminal</b> | %s %s | %s\n\n", b.Date, b.Level, html.EscapeString(b.Strategy)))
	sb.WriteString(fmt.Sprintf("Decisions: %d (bump %d, trim %d, hold %d)\n",
		s.Total, s.Actions[model.ActionBump], s.Actions[model.ActionTrim], s.Actions[model.ActionHold]))
	sb.WriteString(fmt.Sprintf("Spend delta: $%+.2f\n", s.SpendDeltaUSD))
	if s.LowConfidence > 0 || s.CooledDown > 0 || s.Malformed > 0 {
		sb.WriteString(fmt.Sprintf("Held: low_conf %d, cooldown %d, bad_input %d\n",
			s.LowConfidence, s.CooledDown, s.Malformed))
	}

	listed := 0
	for _, d := range b.Decisions {
		if d.Action == model.ActionHold {
			// ranked, so every hold comes after the moves
			break
		}
		if listed == 0 {
			sb.WriteString("\n💰 <b>Top moves:</b>\n")
		}
		if topN > 0 && listed == topN {
			sb.WriteString(fmt.Sprintf("  … %d more\n", s.Actions[model.ActionBump]+s.Actions[model.ActionTrim]-listed))
			break
		}
		sb.WriteString(fmt.Sprintf("  %s %s ×%.3f ($%+.2f)\n",
			actionIcon[d.Action], html.EscapeString(d.ID), d.BudgetMultiplier, d.SpendDeltaUSD))
		listed++
	}
	if b.BatchID != "" {
		sb.WriteString(fmt.Sprintf("\nbatch <code>%s</code>", b.BatchID))
	}
	return sb.String()
}

// FormatLearn formats a learner report.
func FormatLearn(r *model.LearnReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🧠 <b>Learned</b> | %s %s\n\n", r.Date, r.Level))
	sb.WriteString(fmt.Sprintf("Updated: %d\n", r.Updated))
	sb.WriteString(fmt.Sprintf("No outcome: %d\n", r.NoOutcome))
	if r.Invalid > 0 {
		sb.WriteString(fmt.Sprintf("Invalid outcome: %d\n", r.Invalid))
	}
	if r.Duplicates > 0 {
		sb.WriteString(fmt.Sprintf("Duplicate outcome rows: %d\n", r.Duplicates))
	}
	if r.Stale > 0 {
		sb.WriteString(fmt.Sprintf("Already learned: %d\n", r.Stale))
	}
	return sb.String()
}

// FormatApply formats an apply report.
func FormatApply(r *model.ApplyReport) string {
	return fmt.Sprintf("✅ <b>Applied</b> | %s %s\n\nCooldowns written: %d\nSkipped: %d",
		r.Date, r.Level, len(r.Applied), r.Skipped)
}

// FormatHelp lists the bot commands.
func FormatHelp() string {
	return "<b>Commands</b>\n" +
		"/summary [date] [level] - latest batch\n" +
		"/suggest [date] [level] - run the pipeline now\n" +
		"/learn [date] [level] - fold in realized outcomes\n" +
		"/help - this message"
}
