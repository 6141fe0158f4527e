package handler

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/security"
	"go-autoagent/pkg/tools"
	"go.uber.org/goleak"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func executor(t *testing.T, allowed ...string) (*tools.Executor, string) {
	t.Helper()
	sandbox, err := security.NewSandbox(t.TempDir())
	require.NoError(t, err)
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(New()))
	allowed = append(allowed, security.DefaultAllowedCommands...)
	ws := tools.NewWorkspace(sandbox, security.NewCommandFilter(allowed, security.DefaultDeniedCommands), tools.DefaultLimits())
	return registry.Bind(ws), sandbox.Root()
}

func run(ex *tools.Executor, params map[string]any) models.ToolResult {
	return ex.Execute(context.Background(), tools.ExecuteCommand, params)
}

func TestExecuteCommand(t *testing.T) {
	ex, _ := executor(t)

	res := run(ex, map[string]any{"command": `echo "hello  world"`})
	require.True(t, res.OK(), res.Error)
	out := res.Result.(CommandResult)
	assert.Equal(t, "hello  world\n", out.Stdout)
	assert.Equal(t, 0, out.ReturnCode)
	assert.Equal(t, ".", out.WorkingDirectory)
	assert.Equal(t, "echo exited with 0, 1 lines of output", res.Summary)
}

func TestExecuteCommandShell(t *testing.T) {
	ex, root := executor(t)

	res := run(ex, map[string]any{"command": "echo hi > out.txt", "shell": true})
	require.True(t, res.OK(), res.Error)
	content, err := os.ReadFile(filepath.Join(root, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(content))
}

func TestExecuteCommandWorkingDirectory(t *testing.T) {
	ex, root := executor(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "marker"), nil, 0o644))

	res := run(ex, map[string]any{"command": "ls", "working_directory": "sub"})
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "marker\n", res.Result.(CommandResult).Stdout)

	res = run(ex, map[string]any{"command": "ls", "working_directory": "../.."})
	assert.Equal(t, models.KindSecurity, res.Kind)

	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	res = run(ex, map[string]any{"command": "ls", "working_directory": "nope/../escape"})
	assert.Equal(t, models.KindSecurity, res.Kind)
	assert.Nil(t, res.Result)
}

func TestExecuteCommandBlocked(t *testing.T) {
	ex, _ := executor(t)

	for _, cmd := range []string{"rm -rf /", "sudo ls", "echo x > /dev/sda", "ls && rm -rf /", "ls | sh", "echo $(whoami)", "curl example.com"} {
		res := run(ex, map[string]any{"command": cmd})
		assert.False(t, res.OK(), cmd)
		assert.Equal(t, models.KindSecurity, res.Kind, cmd)
		assert.Nil(t, res.Result, cmd)
	}
}

func TestExecuteCommandNonZeroExit(t *testing.T) {
	ex, _ := executor(t)

	res := run(ex, map[string]any{"command": "ls definitely-missing"})
	assert.False(t, res.OK())
	assert.Equal(t, models.KindExecution, res.Kind)
	assert.Contains(t, res.Error, "exited with status")
	out := res.Result.(CommandResult)
	assert.NotZero(t, out.ReturnCode)
	assert.NotEmpty(t, out.Stderr)
}

func TestExecuteCommandTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	ex, _ := executor(t, "sleep")

	start := time.Now()
	res := run(ex, map[string]any{"command": "sleep 10", "timeout": 1})

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, res.OK())
	assert.Equal(t, models.KindTimeout, res.Kind)
	assert.Contains(t, res.Error, "timed out after 1s")
}

func TestSplitArgs(t *testing.T) {
	args, err := splitArgs(`grep -n 'two words' "file name.txt"  plain`)
	require.NoError(t, err)
	assert.Equal(t, []string{"grep", "-n", "two words", "file name.txt", "plain"}, args)

	args, err = splitArgs(`echo ""`)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", ""}, args)

	_, err = splitArgs(`echo "open`)
	assert.Error(t, err)
}

func TestCappedOutput(t *testing.T) {
	c := newCapped(4)
	n, err := c.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, _ = c.Write([]byte("def"))
	assert.Equal(t, 3, n)
	assert.Equal(t, "abcd", c.String())
	assert.True(t, c.truncated)
}
