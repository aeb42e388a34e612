package probe

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/ahrav/go-consensus/internal/ports"
)

// DefaultPrompt asks for a JSON array of list items. Data fields are those
// of ports.GenerateRequest.
const DefaultPrompt = `For the entity "{{.Entity}}"{{if .Disambiguation}} ({{.Disambiguation}}){{end}} in "{{.Locale}}", ` +
	`list the top {{.N}} brands/sites most relevant to it. ` +
	`Return JSON only matching the schema: [{"brand":string, "site":uri, "locale":string, "reason"?:string}].`

// Prompt renders generation requests into prompt text.
type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses text as a Go template with PromptFuncs available. Empty
// text selects DefaultPrompt.
func NewPrompt(text string) (*Prompt, error) {
	if text == "" {
		text = DefaultPrompt
	}
	tmpl, err := template.New("prompt").Funcs(PromptFuncs()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &Prompt{tmpl: tmpl}, nil
}

// Render executes the template for req.
func (p *Prompt) Render(req ports.GenerateRequest) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
