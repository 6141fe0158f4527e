package tools

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/security"
	"sort"
	"strings"
	"sync"
	"time"
)

// Monitor may veto a tool call before it runs.
type Monitor interface {
	Check(sandbox *security.Sandbox, tool string, params map[string]any) error
}

// TimeoutError is returned by tools that gave up after their wall clock limit.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Timeout)
}

type UsageStats struct {
	TotalCalls      int64         `json:"total_calls"`
	SuccessfulCalls int64         `json:"successful_calls"`
	FailedCalls     int64         `json:"failed_calls"`
	TotalTime       time.Duration `json:"total_time"`
	LastUsed        *time.Time    `json:"last_used,omitempty"`
}

func (s UsageStats) AverageTime() time.Duration {
	if s.TotalCalls == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.TotalCalls)
}

type usage struct {
	mu    sync.Mutex
	stats UsageStats
}

func (u *usage) record(ok bool, elapsed time.Duration, at time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stats.TotalCalls++
	if ok {
		u.stats.SuccessfulCalls++
	} else {
		u.stats.FailedCalls++
	}
	u.stats.TotalTime += elapsed
	u.stats.LastUsed = &at
}

func (u *usage) snapshot() UsageStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := u.stats
	if s.LastUsed != nil {
		t := *s.LastUsed
		s.LastUsed = &t
	}
	return s
}

// Registry holds the tool set and its usage counters. It is shared by every
// session; each session executes through its own Executor.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	usage   map[string]*usage
	monitor Monitor
}

type Option func(*Registry)

func WithMonitor(m Monitor) Option {
	return func(r *Registry) {
		r.monitor = m
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools: make(map[string]Tool),
		usage: make(map[string]*usage),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return errors.New("register: tool has no name")
		}
		if _, ok := r.tools[name]; ok {
			return fmt.Errorf("register: tool %s already registered", name)
		}
		r.tools[name] = t
		r.usage[name] = &usage{}
	}
	return nil
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Schema(name string) (Schema, bool) {
	t, ok := r.Lookup(name)
	if !ok {
		return Schema{}, false
	}
	return t.Schema(), true
}

// Catalogue describes every tool for a prompt.
func (r *Registry) Catalogue() string {
	var b strings.Builder
	for _, name := range r.Names() {
		t, _ := r.Lookup(name)
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", name, t.Description(), t.Schema())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Registry) Stats() map[string]UsageStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make(map[string]UsageStats, len(r.usage))
	for name, u := range r.usage {
		res[name] = u.snapshot()
	}
	return res
}

func (r *Registry) record(name string, ok bool, elapsed time.Duration) {
	r.mu.RLock()
	u := r.usage[name]
	r.mu.RUnlock()
	if u != nil {
		u.record(ok, elapsed, time.Now())
	}
}

// Bind returns an executor running tools against ws.
func (r *Registry) Bind(ws *Workspace) *Executor {
	return &Executor{registry: r, ws: ws}
}

type Executor struct {
	registry *Registry
	ws       *Workspace
}

func (e *Executor) Registry() *Registry {
	return e.registry
}

func (e *Executor) Workspace() *Workspace {
	return e.ws
}

// Execute never fails: every problem is reported inside the returned ToolResult.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]any) models.ToolResult {
	l := log.With().Str(logger.ToolField, name).Logger()
	if params == nil {
		params = map[string]any{}
	}

	tool, ok := e.registry.Lookup(name)
	if !ok {
		available := e.registry.Names()
		l.Warn().Msg("unknown tool requested")
		return models.ToolResult{
			Tool:      name,
			Status:    models.StatusError,
			Error:     fmt.Sprintf("unknown tool %q; available tools: %s", name, strings.Join(available, ", ")),
			Kind:      models.KindValidation,
			Available: available,
		}
	}

	schema := tool.Schema()
	if err := schema.Validate(name, params); err != nil {
		e.registry.record(name, false, 0)
		l.Debug().Err(err).Msg("parameter validation failed")
		return models.ToolResult{
			Tool:   name,
			Status: models.StatusError,
			Error:  fmt.Sprintf("%s; schema: %s", err, schema),
			Kind:   models.KindValidation,
			Schema: schema.JSON(),
		}
	}

	if e.registry.monitor != nil {
		if err := e.registry.monitor.Check(e.ws.Sandbox, name, params); err != nil {
			e.registry.record(name, false, 0)
			l.Warn().Err(err).Msg("tool call vetoed")
			return models.ToolResult{Tool: name, Status: models.StatusError, Error: err.Error(), Kind: models.KindSecurity}
		}
	}

	start := time.Now()
	value, err := invoke(ctx, tool, e.ws, Params(params))
	elapsed := time.Since(start)

	res := normalize(name, value)
	res.ExecutionTime = elapsed
	if err != nil {
		res.Status = models.StatusError
		res.Error = err.Error()
		res.Kind = classify(err)
		res.Summary = ""
	}
	e.registry.record(name, res.OK(), elapsed)

	l.Debug().Str("status", string(res.Status)).Dur("elapsed", elapsed).Msg("tool executed")
	return res
}

func invoke(ctx context.Context, tool Tool, ws *Workspace, params Params) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("tool %s panicked: %v", tool.Name(), r)
		}
	}()
	return tool.Execute(ctx, ws, params)
}

func normalize(name string, value any) models.ToolResult {
	switch v := value.(type) {
	case models.ToolResult:
		v.Tool = name
		if v.Status == "" {
			v.Status = models.StatusSuccess
		}
		return v
	case *models.ToolResult:
		if v != nil {
			return normalize(name, *v)
		}
	}
	res := models.ToolResult{Tool: name, Status: models.StatusSuccess, Result: value}
	if s, ok := value.(Summarizer); ok {
		res.Summary = s.Summary()
	}
	return res
}

func classify(err error) models.ErrorKind {
	var timeout *TimeoutError
	var verr *ValidationError
	switch {
	case security.IsViolation(err):
		return models.KindSecurity
	case errors.As(err, &timeout):
		return models.KindTimeout
	case errors.As(err, &verr):
		return models.KindValidation
	}
	return models.KindExecution
}
