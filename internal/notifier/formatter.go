package notifier

import (
	"fmt"
	"strings"

	"RegimeSentinel/internal/model"
)

var regimeIcon = map[model.Regime]string{
	model.Goldilocks: "🌤",
	model.Reflation:  "🔥",
	model.Inflation:  "🌡",
	model.Deflation:  "🧊",
}

var vamsLabel = map[int]string{2: "bull", 0: "neutral", -2: "bear"}

// FormatDailyReport formats a freshly computed snapshot with its receipts.
func FormatDailyReport(r Report) string {
	s := r.Snapshot
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s <b>RegimeSentinel</b> | %s\n\n", regimeIcon[s.Regime], s.AsOf.Format(model.DateLayout)))
	b.WriteString(fmt.Sprintf("Regime: <b>%s</b> (%s)\n", s.Regime, s.RiskRegime))
	b.WriteString(fmt.Sprintf("Risk: %+.2f%s | Inflation: %+.2f%s\n",
		s.RiskScore, tieMark(s.RiskTieBreak), s.InflScore, tieMark(s.InflTieBreak)))
	b.WriteString(fmt.Sprintf("  core %+.0f, satellites %+.2f\n", s.InflCoreScore, s.InflSatScore))
	if s.StressOverride {
		b.WriteString("⚠️ stress override: forced RISK OFF\n")
	}

	if len(r.Votes) > 0 {
		b.WriteString("\n📈 <b>Votes:</b>\n")
		for _, v := range r.Votes {
			note := ""
			if !v.Sufficient {
				note = " (insufficient)"
			}
			b.WriteString(fmt.Sprintf("  %s: %+d %s%s\n", v.Label, v.Vote, v.Direction, note))
		}
	}
	for _, c := range r.Satellites {
		switch {
		case c.Resolved == nil:
			b.WriteString(fmt.Sprintf("  %s: unavailable\n", c.Name))
		case c.Expired:
			b.WriteString(fmt.Sprintf("  %s: expired (%dd)\n", c.Name, c.Resolved.AgeDays))
		default:
			b.WriteString(fmt.Sprintf("  %s: %.2f → %+.2f\n", c.Name, c.Resolved.Value, c.EffectiveVote))
		}
	}

	a := s.Allocation
	b.WriteString("\n💰 <b>Allocation:</b>\n")
	b.WriteString(fmt.Sprintf("  Stocks  %5.1f%% (%s)\n", a.Actual.Stocks*100, vamsLabel[s.VAMS.Stocks]))
	b.WriteString(fmt.Sprintf("  Gold    %5.1f%% (%s)\n", a.Actual.Gold*100, vamsLabel[s.VAMS.Gold]))
	b.WriteString(fmt.Sprintf("  Bitcoin %5.1f%% (%s)\n", a.Actual.Bitcoin*100, vamsLabel[s.VAMS.Bitcoin]))
	b.WriteString(fmt.Sprintf("  Cash    %5.1f%%\n", a.Cash*100))

	b.WriteString(fmt.Sprintf("\nFlip watch: %s | Agreement %.2f (%s)\n", s.FlipWatch, s.Agreement, s.AgreementTrend))
	for _, w := range r.Warnings {
		b.WriteString(fmt.Sprintf("\n%s", w))
	}
	return b.String()
}

// FormatFlipAlert announces a confirmed regime change.
func FormatFlipAlert(s model.RegimeSnapshot) string {
	return fmt.Sprintf("🚨 <b>Regime flip</b> | %s\n\nNow %s %s (%s)\nRisk %+.2f | Inflation %+.2f",
		s.AsOf.Format(model.DateLayout), regimeIcon[s.Regime], s.Regime, s.RiskRegime, s.RiskScore, s.InflScore)
}

// FormatStale tells readers the served snapshot is out of date.
func FormatStale(s model.RegimeSnapshot) string {
	return fmt.Sprintf("⚠️ <b>Stale data</b> (%s)\nServing %s from %s",
		s.StaleReason, s.Regime, s.AsOf.Format(model.DateLayout))
}

// FormatSnapshot is the short form used for command replies.
func FormatSnapshot(s model.RegimeSnapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b> | %s (%s)\n", regimeIcon[s.Regime], s.Regime, s.AsOf.Format(model.DateLayout), s.Source))
	b.WriteString(fmt.Sprintf("Risk %+.2f | Inflation %+.2f | Flip watch %s\n", s.RiskScore, s.InflScore, s.FlipWatch))
	a := s.Allocation.Actual
	b.WriteString(fmt.Sprintf("Stocks %.1f%% | Gold %.1f%% | BTC %.1f%% | Cash %.1f%%",
		a.Stocks*100, a.Gold*100, a.Bitcoin*100, s.Allocation.Cash*100))
	if s.Stale {
		b.WriteString(fmt.Sprintf("\n⚠️ stale: %s", s.StaleReason))
	}
	return b.String()
}

// FormatHistory lists snapshots newest first, one line each.
func FormatHistory(rows []model.RegimeSnapshot) string {
	if len(rows) == 0 {
		return "No history yet"
	}
	var b strings.Builder
	b.WriteString("📅 <b>Regime history</b>\n\n")
	for i := len(rows) - 1; i >= 0; i-- {
		s := rows[i]
		b.WriteString(fmt.Sprintf("%s %s %s %+.0f/%+.0f\n",
			s.AsOf.Format(model.DateLayout), regimeIcon[s.Regime], s.Regime, s.RiskScore, s.InflScore))
	}
	return b.String()
}

func tieMark(used bool) string {
	if used {
		return "*"
	}
	return ""
}
