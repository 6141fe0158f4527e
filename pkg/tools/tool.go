package tools

import (
	"context"
	"fmt"
	"go-autoagent/pkg/security"
	"sort"
	"strings"
	"time"
)

const (
	ListDirectory   = "list_directory"
	ReadFile        = "read_file"
	WriteFile       = "write_file"
	EditFile        = "edit_file"
	SearchFiles     = "search_files"
	GetFileMetadata = "get_file_metadata"
	ExecuteCommand  = "execute_command"
)

// Tool is a capability the loop can invoke. Implementations must reach the
// filesystem and processes only through the Workspace they are given.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, ws *Workspace, params Params) (any, error)
}

// Summarizer lets a tool result describe itself in one line for the model.
type Summarizer interface {
	Summary() string
}

type Limits struct {
	CommandTimeout   time.Duration
	MaxCommandOutput int
	MaxReadSize      int64
}

func DefaultLimits() Limits {
	return Limits{
		CommandTimeout:   30 * time.Second,
		MaxCommandOutput: 1024 * 1024,
		MaxReadSize:      10 * 1024 * 1024,
	}
}

// Workspace binds the security components of one session.
type Workspace struct {
	Sandbox  *security.Sandbox
	Commands *security.CommandFilter
	Limits   Limits
}

func NewWorkspace(sandbox *security.Sandbox, commands *security.CommandFilter, limits Limits) *Workspace {
	return &Workspace{Sandbox: sandbox, Commands: commands, Limits: limits}
}

func (w *Workspace) Describe() string {
	return fmt.Sprintf("workspace root %s (all paths are relative to it)", w.Sandbox.Root())
}

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

type Schema struct {
	Params []Param `json:"parameters"`
}

func (s Schema) Required() []string {
	res := make([]string, 0)
	for _, p := range s.Params {
		if p.Required {
			res = append(res, p.Name)
		}
	}
	return res
}

// JSON renders the schema in JSON-schema form.
func (s Schema) JSON() map[string]any {
	props := make(map[string]any, len(s.Params))
	for _, p := range s.Params {
		prop := map[string]any{"type": string(p.Type), "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   s.Required(),
	}
}

func (s Schema) String() string {
	parts := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		flag := ""
		if p.Required {
			flag = ", required"
		}
		if len(p.Enum) > 0 {
			flag += ", one of " + strings.Join(p.Enum, "|")
		}
		parts = append(parts, fmt.Sprintf("%s (%s%s): %s", p.Name, p.Type, flag, p.Description))
	}
	return strings.Join(parts, "; ")
}

type ValidationError struct {
	Tool    string
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		msgs = append(msgs, "missing required parameters: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		msgs = append(msgs, "invalid parameters: "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("invalid parameters for %s: %s", e.Tool, strings.Join(msgs, "; "))
}

// Validate checks presence of required parameters and the type of every known one.
func (s Schema) Validate(tool string, params Params) error {
	verr := &ValidationError{Tool: tool}
	for _, p := range s.Params {
		v, ok := params[p.Name]
		if !ok || v == nil {
			if p.Required {
				verr.Missing = append(verr.Missing, p.Name)
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			verr.Invalid = append(verr.Invalid, fmt.Sprintf("%s must be %s", p.Name, p.Type))
			continue
		}
		if len(p.Enum) > 0 {
			str, _ := v.(string)
			if !contains(p.Enum, str) {
				verr.Invalid = append(verr.Invalid, fmt.Sprintf("%s must be one of %s", p.Name, strings.Join(p.Enum, "|")))
			}
		}
	}
	if len(verr.Missing) == 0 && len(verr.Invalid) == 0 {
		return nil
	}
	sort.Strings(verr.Missing)
	return verr
}

func typeMatches(t ParamType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return true
		case string:
			return b == "true" || b == "false"
		}
		return false
	case TypeInteger:
		_, ok := toInt(v)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case TypeArray:
		switch v.(type) {
		case []any, []string, string:
			return true
		}
		return false
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
