package blogs

import (
	"bytes"
	"strings"
	"text/template"
	"time"
)

const systemPrompt = "You are a technical writer turning a developer's commit summaries into a short, readable blog post. " +
	"Write in markdown. Start with a single '# ' heading that is the post title."

var postTemplate = template.Must(template.New("post").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.UTC().Format("2006-01-02") },
}).Parse(`Write a blog post about the following work.
{{- if .Title}}
Use this title: {{.Title}}
{{- end}}
{{- if .Instruction}}
Author notes: {{.Instruction}}
{{- end}}

Changes:
{{- range .Entries}}
- [{{date .CommittedAt}}] {{.Message}}
  {{.Summary}}
{{- end}}
`))

type postEntry struct {
	CommittedAt time.Time
	Message     string
	Summary     string
}

type postData struct {
	Title       string
	Instruction string
	Entries     []postEntry
}

func renderPrompt(data postData) (string, error) {
	var buf bytes.Buffer
	if err := postTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// splitTitle pulls a leading markdown heading off content. fallback is used when
// the model did not produce one.
func splitTitle(content, fallback string) (string, string) {
	content = strings.TrimSpace(content)
	first, rest, _ := strings.Cut(content, "\n")
	if strings.HasPrefix(first, "# ") {
		title := strings.TrimSpace(strings.TrimPrefix(first, "# "))
		if title != "" {
			return title, strings.TrimSpace(rest)
		}
	}
	return fallback, content
}

// firstLine returns the subject line of a commit message.
func firstLine(message string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return strings.TrimSpace(line)
}
