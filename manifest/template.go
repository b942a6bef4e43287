package manifest

import (
	"fmt"
	"os"
	"strings"
	"text/template"
)

// templateEngine handles text template rendering with variable substitution.
type templateEngine struct {
	defines map[string]string
	funcs   template.FuncMap
}

// newTemplateEngine creates a new engine with the provided global definitions.
// Definitions are templates themselves, rendered against the enclosing
// scope: a define may call functions such as env, or use the definitions of
// a parent scope, but not its siblings.
func newTemplateEngine(defines map[string]string) (*templateEngine, error) {
	e := &templateEngine{
		defines: make(map[string]string),
		funcs: template.FuncMap{
			"env": os.Getenv,
		},
	}
	return e.sub(defines)
}

// sub creates a new templateEngine that inherits the parent's definitions
// and adds (or overrides) them with the provided local definitions.
func (e *templateEngine) sub(locals map[string]string) (*templateEngine, error) {
	newDefines := make(map[string]string)
	for k, v := range e.defines {
		newDefines[k] = v
	}
	for k, v := range locals {
		val, err := e.render("defines."+k, v)
		if err != nil {
			return nil, fmt.Errorf("rendering define %s: %w", k, err)
		}
		newDefines[k] = val
	}
	return &templateEngine{
		defines: newDefines,
		funcs:   e.funcs,
	}, nil
}

// render executes the provided text as a template using the engine's definitions.
// If the text does not contain "{{", it is returned as-is.
func (e *templateEngine) render(name, text string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	t, err := template.New(name).Funcs(e.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := t.Execute(&buf, e.defines); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderAll renders every element of texts.
func (e *templateEngine) renderAll(name string, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		var err error
		if out[i], err = e.render(fmt.Sprintf("%s[%d]", name, i), t); err != nil {
			return nil, err
		}
	}
	return out, nil
}
