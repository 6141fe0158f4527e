package template

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var cache sync.Map // template text -> *template.Template

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Parse renders text with fields. Parsed templates are cached by their text.
func Parse(text string, fields any) (string, error) {
	tmpl, err := lookup(text)
	if err != nil {
		return "", err
	}
	var result bytes.Buffer
	err = tmpl.Execute(&result, fields)
	if err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}

	return result.String(), nil
}

func lookup(text string) (*template.Template, error) {
	if t, ok := cache.Load(text); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cache.Store(text, t)
	return t, nil
}
