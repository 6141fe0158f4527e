package security

import (
	"regexp"
	"strings"
)

var DefaultAllowedCommands = []string{
	"ls", "dir", "grep", "find", "cat", "head", "tail", "wc", "sort", "uniq",
	"echo", "pwd", "whoami", "tree", "file", "stat", "du", "df", "ps", "top", "which",
}

var DefaultDeniedCommands = []string{
	"rm", "del", "sudo", "chmod", "chown", "dd", "mkfs", "format", "fdisk",
	"shutdown", "reboot", "halt", "kill", "killall", "pkill", "systemctl",
	"service", "mount", "umount",
}

// ShellMetacharacters are refused outright by Sanitize.
const ShellMetacharacters = "|&;`$"

type rule struct {
	name    string
	pattern *regexp.Regexp
	// allow exempts specific matches, e.g. redirection to /dev/null.
	allow func(match string) bool
}

var dangerousRules = []rule{
	{name: "recursive-root-delete", pattern: regexp.MustCompile(`(?i)\brm\s+(-[a-z-]*\s+)*-[a-z]*r[a-z]*\s+(-[a-z-]*\s+)*/`)},
	{name: "privilege-escalation", pattern: regexp.MustCompile(`(?i)(^|[\s;&|(])(sudo|doas|pkexec)(\s|$)|(^|[\s;&|(])su(\s+-|\s+root|\s*$)`)},
	{name: "world-writable-chmod", pattern: regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*(0?777|[ugoa]*\+[rwx]*w[rwx]*|o=[rwx]*w)`)},
	{name: "device-write", pattern: regexp.MustCompile(`(?i)>\s*/dev/[a-z0-9_/-]+`), allow: func(m string) bool {
		return strings.HasSuffix(strings.TrimSpace(strings.ToLower(m)), "/dev/null")
	}},
	{name: "pipe-to-shell", pattern: regexp.MustCompile(`(?i)\|\s*(/[a-z/]*/)?(sh|bash|zsh|dash|ksh|csh|fish)\b`)},
	{name: "command-substitution", pattern: regexp.MustCompile("`|\\$\\(|\\$\\{")},
	{name: "chained-delete", pattern: regexp.MustCompile(`(?i)(&&|\|\||;|\|)\s*rm\b`)},
}

type CommandFilter struct {
	allowed map[string]struct{}
	denied  map[string]struct{}
}

type CommandDescription struct {
	Command     string   `json:"command"`
	BaseCommand string   `json:"base_command"`
	Violations  []string `json:"violations"`
	Valid       bool     `json:"valid"`
}

// NewCommandFilter builds a filter; an empty allow list permits any command that
// is not denied and matches no dangerous pattern.
func NewCommandFilter(allowed, denied []string) *CommandFilter {
	return &CommandFilter{allowed: toSet(allowed), denied: toSet(denied)}
}

func toSet(items []string) map[string]struct{} {
	res := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			res[item] = struct{}{}
		}
	}
	return res
}

// BaseCommand returns the first token without any path prefix, lower-cased.
func BaseCommand(commandLine string) string {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return ""
	}
	base := strings.TrimPrefix(fields[0], "./")
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	return strings.ToLower(base)
}

func (f *CommandFilter) Validate(commandLine string) bool {
	return f.check(commandLine) == nil
}

// Sanitize returns the trimmed command line or the reason it was refused. It is
// stricter than Validate: shell metacharacters are rejected, not escaped.
func (f *CommandFilter) Sanitize(commandLine string) (string, error) {
	if err := f.check(commandLine); err != nil {
		return "", err
	}
	cmd := strings.TrimSpace(commandLine)
	if i := strings.IndexAny(cmd, ShellMetacharacters); i >= 0 {
		return "", &CommandViolation{
			Command:     cmd,
			BaseCommand: BaseCommand(cmd),
			Reason:      "shell metacharacter " + string(cmd[i]) + " is not allowed",
		}
	}
	return cmd, nil
}

func (f *CommandFilter) Describe(commandLine string) CommandDescription {
	d := CommandDescription{
		Command:     commandLine,
		BaseCommand: BaseCommand(commandLine),
		Violations:  make([]string, 0),
	}
	if reason := f.listReason(d.BaseCommand); reason != "" {
		d.Violations = append(d.Violations, reason)
	}
	for _, r := range dangerousRules {
		if r.matches(commandLine) {
			d.Violations = append(d.Violations, "dangerous pattern: "+r.name)
		}
	}
	if strings.ContainsAny(commandLine, ShellMetacharacters) {
		d.Violations = append(d.Violations, "contains shell metacharacters")
	}
	d.Valid = len(d.Violations) == 0
	return d
}

func (f *CommandFilter) check(commandLine string) error {
	cmd := strings.TrimSpace(commandLine)
	base := BaseCommand(cmd)
	if base == "" {
		return &CommandViolation{Command: cmd, Reason: "empty command"}
	}
	for _, r := range dangerousRules {
		if r.matches(cmd) {
			return &CommandViolation{Command: cmd, BaseCommand: base, Pattern: r.name}
		}
	}
	if reason := f.listReason(base); reason != "" {
		return &CommandViolation{Command: cmd, BaseCommand: base, Reason: reason}
	}
	return nil
}

func (f *CommandFilter) listReason(base string) string {
	if _, ok := f.denied[base]; ok {
		return "command " + base + " is denied"
	}
	if len(f.allowed) == 0 {
		return ""
	}
	if _, ok := f.allowed[base]; !ok {
		return "command " + base + " is not in the allowed list"
	}
	return ""
}

func (r rule) matches(cmd string) bool {
	for _, m := range r.pattern.FindAllString(cmd, -1) {
		if r.allow == nil || !r.allow(m) {
			return true
		}
	}
	return false
}
