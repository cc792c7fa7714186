// Package termview renders view state for a terminal.
package termview

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/danweinerdev/go-opsboard"
)

var (
	ColorGreen  = lipgloss.Color("#22C55E")
	ColorYellow = lipgloss.Color("#EAB308")
	ColorRed    = lipgloss.Color("#EF4444")
	ColorGray   = lipgloss.Color("#6B7280")
	ColorWhite  = lipgloss.Color("#F9FAFB")
	ColorBlue   = lipgloss.Color("#3B82F6")
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

var tierColors = map[opsboard.Tier]lipgloss.Color{
	opsboard.TierGood:     ColorGreen,
	opsboard.TierWarning:  ColorYellow,
	opsboard.TierCritical: ColorRed,
	opsboard.TierNeutral:  ColorGray,
}

// Render draws one view: a title line, one row per endpoint and a footer
// with the last update time.
func Render(state opsboard.ViewState) string {
	titleStyle := lipgloss.NewStyle().Foreground(ColorWhite).Bold(true)
	title := titleStyle.Render(state.Name)
	if state.Stale {
		title += " " + StalePill()
	}

	headerStyle := lipgloss.NewStyle().Foreground(ColorWhite).Bold(true)
	dividerStyle := lipgloss.NewStyle().Foreground(ColorGray)

	header := fmt.Sprintf("%-14s %8s %7s %9s %9s %9s  %-8s  %s",
		"ENDPOINT", "COUNT", "ERRORS", "RATE/S", "AVG MS", "P95 MS", "TIER", "TREND")

	lines := []string{
		title,
		headerStyle.Render(header),
		dividerStyle.Render(strings.Repeat("─", lipgloss.Width(header))),
	}

	names := endpointNames(state)
	if len(names) == 0 {
		lines = append(lines, dividerStyle.Render("no data yet"))
	}
	for _, name := range names {
		lines = append(lines, renderRow(state, name))
	}

	footer := "never updated"
	if !state.Updated.IsZero() {
		footer = "updated " + state.Updated.Format(time.TimeOnly)
	}
	if state.LastError != "" {
		footer += "  " + lipgloss.NewStyle().Foreground(ColorRed).Render(state.LastError)
	}
	lines = append(lines, dividerStyle.Render(footer))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRow(state opsboard.ViewState, name string) string {
	stat, ok := state.Endpoints[name]
	hist := state.History[name]

	var rate float64
	if len(hist) > 0 {
		rate = latestRate(hist)
	}

	tier, tracked := state.Tiers[name]
	if !tracked {
		tier = opsboard.TierNeutral
	}

	count, errs, avg, p95 := "-", "-", "-", "-"
	if ok {
		count = fmt.Sprintf("%d", stat.Count)
		errs = fmt.Sprintf("%d", stat.Errors)
		avg = formatMs(stat.AvgLatencyMs)
		p95 = formatMs(stat.P95LatencyMs)
	}

	rates := make([]float64, len(hist))
	for i, p := range hist {
		rates[i] = p.Rate
	}

	row := fmt.Sprintf("%-14s %8s %7s %9.2f %9s %9s  ", name, count, errs, rate, avg, p95)
	return row + TierBadge(tier) + "  " +
		lipgloss.NewStyle().Foreground(ColorBlue).Render(Sparkline(rates))
}

// latestRate returns the rate of the newest point regardless of order.
func latestRate(hist []opsboard.HistoryPoint) float64 {
	latest := hist[0]
	for _, p := range hist[1:] {
		if p.Timestamp.After(latest.Timestamp) {
			latest = p
		}
	}
	return latest.Rate
}

func endpointNames(state opsboard.ViewState) []string {
	seen := make(map[string]bool)
	for name := range state.Tiers {
		seen[name] = true
	}
	for name := range state.Endpoints {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatMs(v float64) string {
	if math.IsNaN(v) || v < 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}

// TierBadge renders a tier name padded to a fixed width in its colour.
func TierBadge(t opsboard.Tier) string {
	color, ok := tierColors[t]
	if !ok {
		color = ColorGray
	}
	return lipgloss.NewStyle().
		Foreground(color).
		Bold(t == opsboard.TierCritical).
		Width(8).
		Render(string(t))
}

// StalePill marks a view whose data is out of date.
func StalePill() string {
	return lipgloss.NewStyle().
		Background(ColorRed).
		Foreground(ColorWhite).
		Bold(true).
		Padding(0, 1).
		Render("STALE")
}

// Sparkline scales values onto eight block characters. All-zero or empty
// input renders as the lowest block.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	var maxV float64
	for _, v := range values {
		if v > maxV {
			maxV = v
		}
	}

	top := len(sparkBlocks) - 1
	var sb strings.Builder
	for _, v := range values {
		idx := 0
		if maxV > 0 && v > 0 {
			idx = int(math.Round(v / maxV * float64(top)))
		}
		sb.WriteRune(sparkBlocks[idx])
	}
	return sb.String()
}
