// Package prompts renders the chat prompts used by the AI service from embedded YAML templates.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Prompt names.
const (
	DraftReply           = "draft_reply"
	Insights             = "insights"
	Summary              = "summary"
	CompetitorComparison = "competitor_comparison"
)

//go:embed templates.yaml
var templatesYAML []byte

type rawPrompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type prompt struct {
	system string
	user   *template.Template
}

// Library holds the parsed prompt templates.
type Library struct {
	prompts map[string]*prompt
}

var funcs = template.FuncMap{
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "at an unknown time"
		}
		return humanize.Time(t)
	},
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"stars": func(n int) string {
		if n < 0 {
			n = 0
		}
		if n > 5 {
			n = 5
		}
		return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
	},
	"truncate": func(s string, n int) string {
		s = strings.Join(strings.Fields(s), " ")
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n]) + "…"
	},
}

// Load parses the embedded templates.
func Load() (*Library, error) {
	return parse(templatesYAML)
}

// MustLoad is Load for package initialization in main.
func MustLoad() *Library {
	lib, err := Load()
	if err != nil {
		panic(err)
	}
	return lib
}

func parse(data []byte) (*Library, error) {
	var raw map[string]rawPrompt
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}

	lib := &Library{prompts: make(map[string]*prompt, len(raw))}
	for name, rp := range raw {
		if strings.TrimSpace(rp.System) == "" || strings.TrimSpace(rp.User) == "" {
			return nil, fmt.Errorf("prompt %q needs both system and user text", name)
		}
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(rp.User)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt %q: %w", name, err)
		}
		lib.prompts[name] = &prompt{system: strings.TrimSpace(rp.System), user: tmpl}
	}
	return lib, nil
}

// Render returns the system message and the rendered user prompt for name.
func (l *Library) Render(name string, data any) (system, user string, err error) {
	p, ok := l.prompts[name]
	if !ok {
		return "", "", fmt.Errorf("unknown prompt %q", name)
	}

	var b strings.Builder
	if err := p.user.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("failed to render prompt %q: %w", name, err)
	}
	return p.system, strings.TrimSpace(b.String()), nil
}
