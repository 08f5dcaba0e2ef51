package progress

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/Travbz/doc-smith/internal/usecase/governor"
)

// Summary is what the CLI reports after a run.
type Summary struct {
	WorkflowID string
	Status     string
	PRURL      string
	Branch     string
	DryRun     bool
	Usage      governor.Summary
}

// RenderSummary draws the run outcome and the spend report in a card.
func RenderSummary(s Summary) string {
	rows := [][2]string{
		{"run", s.WorkflowID},
		{"status", s.Status},
	}
	if s.PRURL != "" {
		rows = append(rows, [2]string{"pull request", s.PRURL})
	}
	if s.Branch != "" {
		rows = append(rows, [2]string{"branch", s.Branch})
	}
	if s.DryRun {
		rows = append(rows, [2]string{"mode", "dry run, nothing pushed"})
	}
	rows = append(rows,
		[2]string{"requests", fmt.Sprintf("%d", s.Usage.TotalRequests)},
		[2]string{"tokens", fmt.Sprintf("%d", s.Usage.TotalTokens)},
		[2]string{"cost", fmt.Sprintf("$%.4f", s.Usage.TotalCost)},
	)

	models := make([]string, 0, len(s.Usage.Models))
	for m := range s.Usage.Models {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		u := s.Usage.Models[m]
		rows = append(rows, [2]string{"  " + m, fmt.Sprintf("%d req, %d tok, $%.4f", u.Requests, u.TotalTokens(), u.Cost)})
	}

	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r[0]))
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		label := styleLabel.Render(r[0] + strings.Repeat(" ", width-lipgloss.Width(r[0])))
		lines[i] = label + "  " + styleValue.Render(r[1])
	}
	return styleCard.Render(strings.Join(lines, "\n"))
}

// RenderDocuments renders generated documents as terminal markdown, one
// section per file in path order. Rendering failures fall back to the raw
// text.
func RenderDocuments(docs map[string]string, width int) string {
	if width <= 0 {
		width = 100
	}
	paths := make([]string, 0, len(docs))
	for p := range docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)

	var b strings.Builder
	for _, p := range paths {
		b.WriteString(styleTitle.Render(symbols.arrow+" "+p) + "\n")
		content := docs[p]
		if err == nil {
			if rendered, rerr := r.Render(content); rerr == nil {
				content = rendered
			}
		}
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
