package llm

import (
	"fmt"
	"strings"

	"github.com/vpetrenko/failtriage/pkg/models"
)

const maxPromptDocument = 2000

// BuildPrompt renders the cluster context into the analysis prompt. The
// reply contract is a single JSON object so parseSections stays trivial.
func BuildPrompt(req models.AnalysisRequest) string {
	var b strings.Builder

	b.WriteString("You are a test-failure triage assistant. Analyze the failure cluster below.\n\n")
	fmt.Fprintf(&b, "Cluster: %s\n", req.Label)
	if req.Category != "" {
		fmt.Fprintf(&b, "Failure category: %s\n", req.Category)
	}
	fmt.Fprintf(&b, "Affected test results: %d\n\n", req.MemberCount)

	b.WriteString("Normalized error text:\n")
	b.WriteString(clip(req.Document, maxPromptDocument))
	b.WriteString("\n")

	if req.LogSnippet != "" {
		b.WriteString("\nLog excerpt:\n")
		b.WriteString(clip(req.LogSnippet, maxPromptDocument))
		b.WriteString("\n")
	}

	if len(req.Matches) > 0 {
		b.WriteString("\nKnown issues that may be related:\n")
		for _, m := range req.Matches {
			fmt.Fprintf(&b, "- %s (similarity %.2f): %s\n", m.Entry.Title, m.Score, m.Entry.Description)
			for _, step := range m.Entry.ResolutionSteps {
				fmt.Fprintf(&b, "  * %s\n", step)
			}
		}
	}

	b.WriteString("\nReply with exactly one JSON object, no other text, with keys:\n")
	b.WriteString(`  "situation": one paragraph describing what failed and the likely root cause` + "\n")
	b.WriteString(`  "category": one of "test", "app", "env", "data"` + "\n")
	b.WriteString(`  "remediation": concrete next steps for the team` + "\n")
	b.WriteString(`  "severity": "low", "medium" or "high"` + "\n")
	return b.String()
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[truncated]"
}
