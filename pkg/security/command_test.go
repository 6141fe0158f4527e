package security

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestBaseCommand(t *testing.T) {
	assert.Equal(t, "ls", BaseCommand("  LS -la"))
	assert.Equal(t, "script.sh", BaseCommand("./script.sh arg"))
	assert.Equal(t, "grep", BaseCommand("/usr/bin/grep foo"))
	assert.Equal(t, "", BaseCommand("   "))
}

func TestValidateRejectsDangerous(t *testing.T) {
	f := NewCommandFilter(DefaultAllowedCommands, DefaultDeniedCommands)
	open := NewCommandFilter(nil, nil)

	for _, cmd := range []string{
		"rm -rf /",
		"sudo anything",
		"echo x > /dev/sda",
		"ls && rm -rf /",
		"cat notes | sh",
		"echo `whoami`",
		"echo $(id)",
		"chmod 777 file",
		"ls; rm notes",
	} {
		assert.False(t, f.Validate(cmd), cmd)
		assert.False(t, open.Validate(cmd), "without lists: %s", cmd)
	}
}

func TestValidateLists(t *testing.T) {
	f := NewCommandFilter([]string{"ls"}, DefaultDeniedCommands)
	assert.True(t, f.Validate("ls -la"))
	assert.False(t, f.Validate("cat file"))
	assert.False(t, f.Validate(""))

	denied := NewCommandFilter(nil, []string{"kill"})
	assert.True(t, denied.Validate("python3 script.py"))
	assert.False(t, denied.Validate("KILL 1"))
}

func TestValidateAllowsDevNull(t *testing.T) {
	f := NewCommandFilter(nil, nil)
	assert.True(t, f.Validate("echo hi > /dev/null"))
}

func TestSanitize(t *testing.T) {
	f := NewCommandFilter(DefaultAllowedCommands, DefaultDeniedCommands)

	cmd, err := f.Sanitize("  ls -la  ")
	require.NoError(t, err)
	assert.Equal(t, "ls -la", cmd)

	_, err = f.Sanitize("ls && cat x")
	var v *CommandViolation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "ls", v.BaseCommand)
	assert.Contains(t, v.Reason, "metacharacter")

	_, err = f.Sanitize("rm -rf /")
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "recursive-root-delete", v.Pattern)

	_, err = f.Sanitize("curl example.com")
	require.True(t, errors.As(err, &v))
	assert.Contains(t, v.Reason, "not in the allowed list")
}

func TestDescribe(t *testing.T) {
	f := NewCommandFilter([]string{"ls"}, nil)

	d := f.Describe("ls && rm -rf /")
	assert.False(t, d.Valid)
	assert.Equal(t, "ls", d.BaseCommand)
	assert.Contains(t, d.Violations, "dangerous pattern: recursive-root-delete")
	assert.Contains(t, d.Violations, "dangerous pattern: chained-delete")

	d = f.Describe("ls -la")
	assert.True(t, d.Valid)
	assert.Empty(t, d.Violations)
}
