package progress

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorBorder  = lipgloss.AdaptiveColor{Light: "#bdbdbd", Dark: "#616161"}
)

var (
	styleTitle   = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleDone    = lipgloss.NewStyle().Foreground(colorSuccess)
	styleActive  = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	stylePending = lipgloss.NewStyle().Foreground(colorMuted)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleLabel   = lipgloss.NewStyle().Foreground(colorMuted)
	styleValue   = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	styleCard    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

type symbolSet struct {
	success, failure, warning, pending, arrow string
}

var symbols = detectSymbols()

// detectSymbols falls back to ASCII on terminals without a UTF-8 locale, or
// when DOCSMITH_ASCII_SYMBOLS is set.
func detectSymbols() symbolSet {
	unicode := symbolSet{success: "✓", failure: "✗", warning: "⚠", pending: "•", arrow: "→"}
	ascii := symbolSet{success: "[OK]", failure: "[ERR]", warning: "[!]", pending: "*", arrow: "->"}

	if v := os.Getenv("DOCSMITH_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return ascii
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return unicode
		}
	}
	return ascii
}
