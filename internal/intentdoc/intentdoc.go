// Package intentdoc parses intent manifests: Markdown with YAML frontmatter
// carrying the title and category, and a body that becomes the description.
package intentdoc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/intentmarket/internal/program"
)

// ErrNoTitle is returned when neither frontmatter nor body supplies a title.
var ErrNoTitle = errors.New("intentdoc: manifest has no title")

// Frontmatter holds the recognised manifest keys.
type Frontmatter struct {
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
}

// Manifest is a parsed intent manifest.
type Manifest struct {
	Frontmatter
	Description string
}

// Parse extracts frontmatter and body from raw Markdown. A missing
// frontmatter title falls back to the first H1 heading, which is then
// dropped from the description.
func Parse(data []byte) (*Manifest, error) {
	yamlBlock, body, ok := splitFrontmatter(data)
	m := &Manifest{}
	if ok {
		if err := yaml.Unmarshal(yamlBlock, &m.Frontmatter); err != nil {
			return nil, fmt.Errorf("intentdoc: frontmatter: %w", err)
		}
	}
	if m.Title == "" {
		m.Title, body = takeHeading(body)
	}
	if m.Title == "" {
		return nil, ErrNoTitle
	}
	m.Title = strings.TrimSpace(m.Title)
	m.Category = strings.TrimSpace(m.Category)
	m.Description = strings.TrimSpace(body)
	return m, nil
}

// Args converts m into validated register_intent arguments.
func (m *Manifest) Args() (program.RegisterIntentArgs, error) {
	args := program.RegisterIntentArgs{Title: m.Title, Description: m.Description}
	if m.Category != "" {
		cat := m.Category
		args.Category = &cat
	}
	if err := args.Validate(); err != nil {
		return program.RegisterIntentArgs{}, fmt.Errorf("intentdoc: %w", err)
	}
	return args, nil
}

// splitFrontmatter separates YAML frontmatter (between leading ---
// delimiters) from the Markdown body. ok is false when there is none.
func splitFrontmatter(data []byte) ([]byte, string, bool) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), false
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")
	return yamlBlock, body, true
}

// takeHeading returns the first H1 heading and the body without it.
func takeHeading(body string) (string, string) {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			rest := append(lines[:i:i], lines[i+1:]...)
			return strings.TrimSpace(trimmed[2:]), strings.Join(rest, "\n")
		}
	}
	return "", body
}
