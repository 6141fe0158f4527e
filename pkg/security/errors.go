package security

import (
	"errors"
	"fmt"
)

// SandboxViolation reports a path that would leave the workspace root.
type SandboxViolation struct {
	AttemptedPath string `json:"attempted_path"`
	ResolvedPath  string `json:"resolved_path,omitempty"`
	Reason        string `json:"reason"`
}

func (v *SandboxViolation) Error() string {
	if v.ResolvedPath != "" && v.ResolvedPath != v.AttemptedPath {
		return fmt.Sprintf("sandbox violation: %s (%s resolves to %s)", v.Reason, v.AttemptedPath, v.ResolvedPath)
	}
	return fmt.Sprintf("sandbox violation: %s (%s)", v.Reason, v.AttemptedPath)
}

// CommandViolation reports a command line rejected by the filter. Pattern names the
// dangerous rule that matched; Reason carries list or metacharacter rejections.
type CommandViolation struct {
	Command     string `json:"command"`
	BaseCommand string `json:"base_command"`
	Pattern     string `json:"pattern,omitempty"`
	Reason      string `json:"reason"`
}

func (v *CommandViolation) Error() string {
	if v.Pattern != "" {
		return fmt.Sprintf("command violation: %q matches dangerous pattern %s", v.Command, v.Pattern)
	}
	return fmt.Sprintf("command violation: %q: %s", v.Command, v.Reason)
}

// PolicyViolation reports an operation vetoed by the safety monitor.
type PolicyViolation struct {
	Rule   string `json:"rule"`
	Risk   Risk   `json:"risk"`
	Reason string `json:"reason"`
}

func (v *PolicyViolation) Error() string {
	return fmt.Sprintf("blocked by safety rule %s (%s risk): %s", v.Rule, v.Risk, v.Reason)
}

// IsViolation reports whether err carries any security violation.
func IsViolation(err error) bool {
	var sv *SandboxViolation
	var cv *CommandViolation
	var pv *PolicyViolation
	return errors.As(err, &sv) || errors.As(err, &cv) || errors.As(err, &pv)
}
