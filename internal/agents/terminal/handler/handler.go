package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/security"
	"go-autoagent/pkg/tools"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	minTimeout = 1
	maxTimeout = 300
	// waitDelay bounds how long Wait blocks on pipes after the process was killed.
	waitDelay = 2 * time.Second
)

// Handler is the execute_command tool.
type Handler struct{}

func New() *Handler {
	return &Handler{}
}

type CommandResult struct {
	Command          string `json:"command"`
	WorkingDirectory string `json:"working_directory"`
	ReturnCode       int    `json:"return_code"`
	Stdout           string `json:"stdout"`
	Stderr           string `json:"stderr"`
	Truncated        bool   `json:"truncated,omitempty"`
}

func (r CommandResult) Summary() string {
	lines := 0
	if out := strings.TrimRight(r.Stdout, "\n"); out != "" {
		lines = strings.Count(out, "\n") + 1
	}
	s := fmt.Sprintf("%s exited with %d, %d lines of output", security.BaseCommand(r.Command), r.ReturnCode, lines)
	if r.Truncated {
		s += " (truncated)"
	}
	return s
}

// ExitError reports a command that ran but exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		if len(s) > 500 {
			s = s[len(s)-500:]
		}
		msg += ": " + s
	}
	return msg
}

func (h *Handler) Name() string { return tools.ExecuteCommand }

func (h *Handler) Description() string {
	return "Run an allow-listed command inside the workspace. Shell operators such as | & ; ` $ are refused."
}

func (h *Handler) Schema() tools.Schema {
	return tools.Schema{Params: []tools.Param{
		{Name: "command", Type: tools.TypeString, Description: "command line to run", Required: true},
		{Name: "working_directory", Type: tools.TypeString, Description: "directory relative to the workspace root", Default: "."},
		{Name: "timeout", Type: tools.TypeInteger, Description: fmt.Sprintf("seconds before the command is killed (%d-%d)", minTimeout, maxTimeout)},
		{Name: "capture_output", Type: tools.TypeBoolean, Description: "return stdout and stderr", Default: true},
		{Name: "shell", Type: tools.TypeBoolean, Description: "run through sh -c", Default: false},
	}}
}

func (h *Handler) Execute(ctx context.Context, ws *tools.Workspace, params tools.Params) (any, error) {
	timeout := ws.Limits.CommandTimeout
	if params.Has("timeout") {
		timeout = time.Duration(clamp(params.Int("timeout", 0), minTimeout, maxTimeout)) * time.Second
	}
	res, err := h.RunCommand(ctx, ws, params.String("command", ""), RunOptions{
		Dir:     params.String("working_directory", "."),
		Timeout: timeout,
		Capture: params.Bool("capture_output", true),
		Shell:   params.Bool("shell", false),
	})
	if res.Command == "" {
		return nil, err
	}
	return res, err
}

type RunOptions struct {
	Dir     string
	Timeout time.Duration
	Capture bool
	Shell   bool
}

// RunCommand filters, then runs a command with a hard wall clock limit. A result
// is returned alongside the error whenever the process actually started.
func (h *Handler) RunCommand(ctx context.Context, ws *tools.Workspace, command string, opts RunOptions) (CommandResult, error) {
	if ws.Commands == nil {
		return CommandResult{}, errors.New("no command filter configured for this workspace")
	}
	clean, err := ws.Commands.Sanitize(command)
	if err != nil {
		return CommandResult{}, err
	}
	dir, err := ws.Sandbox.SanitizePath(opts.Dir)
	if err != nil {
		return CommandResult{}, err
	}
	if info, err := os.Stat(dir); err != nil {
		return CommandResult{}, fmt.Errorf("working directory: %w", err)
	} else if !info.IsDir() {
		return CommandResult{}, fmt.Errorf("working directory %s is not a directory", opts.Dir)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = tools.DefaultLimits().CommandTimeout
	}

	l := log.With().Str(logger.ToolField, tools.ExecuteCommand).Str("command", clean).Logger()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd, err := buildCommand(ctx, clean, opts.Shell)
	if err != nil {
		return CommandResult{}, err
	}
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	limit := ws.Limits.MaxCommandOutput
	stdout, stderr := newCapped(limit), newCapped(limit)
	if opts.Capture {
		cmd.Stdout, cmd.Stderr = stdout, stderr
	} else {
		cmd.Stdout, cmd.Stderr = io.Discard, io.Discard
	}

	start := time.Now()
	l.Debug().Dur("timeout", opts.Timeout).Msg("running command")
	runErr := cmd.Run()
	res := CommandResult{
		Command:          clean,
		WorkingDirectory: ws.Sandbox.RelativeToRoot(dir),
		Stdout:           stdout.String(),
		Stderr:           stderr.String(),
		Truncated:        stdout.truncated || stderr.truncated,
	}
	if cmd.ProcessState != nil {
		res.ReturnCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		l.Warn().Dur("elapsed", time.Since(start)).Msg("command killed after timeout")
		return res, &tools.TimeoutError{Operation: "command " + security.BaseCommand(clean), Timeout: opts.Timeout}
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return res, &ExitError{Command: clean, Code: exitErr.ExitCode(), Stderr: res.Stderr}
		}
		return CommandResult{}, fmt.Errorf("run: %w", runErr)
	}
	return res, nil
}

func buildCommand(ctx context.Context, line string, shell bool) (*exec.Cmd, error) {
	if shell {
		return exec.CommandContext(ctx, "sh", "-c", line), nil
	}
	args, err := splitArgs(line)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return exec.CommandContext(ctx, args[0], args[1:]...), nil
}

// splitArgs splits a command line on whitespace, honouring single and double quotes.
func splitArgs(line string) ([]string, error) {
	args := make([]string, 0)
	var cur strings.Builder
	var quote rune
	inArg := false
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in command", quote)
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}

// capped keeps the first max bytes written and drops the rest.
type capped struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newCapped(max int) *capped {
	if max <= 0 {
		max = tools.DefaultLimits().MaxCommandOutput
	}
	return &capped{max: max}
}

func (c *capped) Write(p []byte) (int, error) {
	if room := c.max - c.buf.Len(); room < len(p) {
		c.truncated = true
		if room > 0 {
			c.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *capped) String() string {
	return c.buf.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
