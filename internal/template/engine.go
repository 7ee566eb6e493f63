// Package template provides template rendering for generated worker files.
package template

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"unicode"
)

//go:embed all:templates
var templatesFS embed.FS

// Engine provides template rendering capabilities.
type Engine struct {
	funcMap template.FuncMap
}

// NewEngine creates a new template engine.
func NewEngine() *Engine {
	return &Engine{
		funcMap: template.FuncMap{
			"kebabCase":  KebabCase,
			"snakeCase":  SnakeCase,
			"pascalize":  Pascalize,
			"upper":      strings.ToUpper,
			"lower":      strings.ToLower,
			"replace":    strings.ReplaceAll,
			"join":       strings.Join,
			"trimSuffix": strings.TrimSuffix,
		},
	}
}

// Render renders a template string with the given data.
func (e *Engine) Render(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("template").Funcs(e.funcMap).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// RenderTemplate renders an embedded template file with the given data.
func (e *Engine) RenderTemplate(templatePath string, data interface{}) (string, error) {
	content, err := templatesFS.ReadFile("templates/" + templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read embedded template %s: %w", templatePath, err)
	}

	return e.Render(string(content), data)
}

// ReadEmbeddedFile reads an embedded file without template rendering.
func (e *Engine) ReadEmbeddedFile(templatePath string) ([]byte, error) {
	content, err := templatesFS.ReadFile("templates/" + templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded file %s: %w", templatePath, err)
	}

	return content, nil
}

// KebabCase converts a string to kebab-case.
func KebabCase(s string) string {
	words := splitWords(s)
	for i := range words {
		words[i] = strings.ToLower(words[i])
	}
	return strings.Join(words, "-")
}

// SnakeCase converts a string to snake_case.
func SnakeCase(s string) string {
	words := splitWords(s)
	for i := range words {
		words[i] = strings.ToLower(words[i])
	}
	return strings.Join(words, "_")
}

// Pascalize converts a string to PascalCase.
func Pascalize(s string) string {
	words := splitWords(s)
	for i := range words {
		if words[i] == "" {
			continue
		}
		words[i] = strings.ToUpper(words[i][:1]) + strings.ToLower(words[i][1:])
	}
	return strings.Join(words, "")
}

// splitWords splits on hyphens, underscores, spaces and case boundaries.
func splitWords(s string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	var prev rune
	for _, c := range s {
		switch {
		case c == '-' || c == '_' || c == ' ':
			flush()
		case unicode.IsUpper(c) && prev != 0 && !unicode.IsUpper(prev):
			flush()
			current.WriteRune(c)
		default:
			current.WriteRune(c)
		}
		prev = c
	}
	flush()

	return words
}
