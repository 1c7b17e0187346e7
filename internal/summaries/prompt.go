package summaries

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/angelmondragon/commitscribe-backend/pkg/github"
)

const systemPrompt = "You write concise, accurate summaries of source code changes for the developer who made them. " +
	"Describe what changed and why it matters. Do not invent details that are not in the diff."

const (
	defaultMaxFileDiffBytes = 6000
	defaultMaxPromptFiles   = 40
)

var summaryTemplate = template.Must(template.New("summary").Parse(`Summarize the following {{.Kind}}.

{{- if .Title}}
Title: {{.Title}}
{{- end}}
Message:
{{.Message}}

Totals: +{{.Additions}} -{{.Deletions}} across {{len .Files}} file(s).
{{- if .Omitted}}
{{.Omitted}} file(s) were omitted as generated, binary or bulk changes.
{{- end}}

Files:
{{- range .Files}}
- {{.Filename}} ({{.Status}}, +{{.Additions}} -{{.Deletions}})
{{- end}}

Diff:
{{.Diff}}
{{- if .Regenerate}}

The previous summary was:
{{.PreviousSummary}}

Rewrite the summary following this instruction from the author:
{{.Instruction}}
{{- end}}
`))

type promptData struct {
	Kind            string
	Title           string
	Message         string
	Additions       int
	Deletions       int
	Files           []github.FileDiff
	Omitted         int
	Diff            string
	Regenerate      bool
	PreviousSummary string
	Instruction     string
}

type promptBudget struct {
	maxFileDiffBytes int
	maxFiles         int
}

func (b promptBudget) normalized() promptBudget {
	if b.maxFileDiffBytes <= 0 {
		b.maxFileDiffBytes = defaultMaxFileDiffBytes
	}
	if b.maxFiles <= 0 {
		b.maxFiles = defaultMaxPromptFiles
	}
	return b
}

// renderDiff concatenates per-file patches, truncating each to the budget.
func renderDiff(files []github.FileDiff, budget promptBudget) string {
	budget = budget.normalized()
	var sb strings.Builder
	for i, f := range files {
		if i >= budget.maxFiles {
			fmt.Fprintf(&sb, "... %d more file(s) not shown\n", len(files)-i)
			break
		}
		fmt.Fprintf(&sb, "--- %s\n", f.Filename)
		patch := f.Patch
		if patch == "" {
			sb.WriteString("(no textual diff)\n")
			continue
		}
		if len(patch) > budget.maxFileDiffBytes {
			patch = patch[:budget.maxFileDiffBytes] + "\n... (truncated)"
		}
		sb.WriteString(patch)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "(no files left after filtering)"
	}
	return sb.String()
}

func buildPrompt(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
