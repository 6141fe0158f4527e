package security

import (
	"fmt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"os"
	"regexp"
	"strings"
)

type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

var riskOrder = map[Risk]int{RiskLow: 1, RiskMedium: 2, RiskHigh: 3, RiskCritical: 4}

// MonitorRule flags tool calls. Pattern is matched against Param of the call; a
// rule without a pattern matches every call to one of its tools.
type MonitorRule struct {
	Name        string
	Description string
	Risk        Risk
	Block       bool
	Tools       []string
	Param       string
	Pattern     *regexp.Regexp
	// Existing limits the rule to calls whose Param names a file already in the workspace.
	Existing bool
}

func DefaultMonitorRules() []MonitorRule {
	return []MonitorRule{
		{
			Name:        "file_deletion",
			Description: "command deletes files",
			Risk:        RiskMedium,
			Tools:       []string{"execute_command"},
			Param:       "command",
			Pattern:     regexp.MustCompile(`(?i)\b(rm|del|unlink|shred)\b`),
		},
		{
			Name:        "directory_deletion",
			Description: "command deletes directories",
			Risk:        RiskHigh,
			Tools:       []string{"execute_command"},
			Param:       "command",
			Pattern:     regexp.MustCompile(`(?i)\b(rmdir|rd)\b|\brm\s+(-[a-z]*\s+)*-[a-z]*r`),
		},
		{
			Name:        "system_commands",
			Description: "command changes system state",
			Risk:        RiskCritical,
			Block:       true,
			Tools:       []string{"execute_command"},
			Param:       "command",
			Pattern:     regexp.MustCompile(`(?i)\b(sudo|su|shutdown|reboot|halt|poweroff|mkfs|fdisk|dd|systemctl|service|mount|umount|format)\b`),
		},
		{
			Name:        "network_operations",
			Description: "command talks to the network",
			Risk:        RiskMedium,
			Tools:       []string{"execute_command"},
			Param:       "command",
			Pattern:     regexp.MustCompile(`(?i)\b(curl|wget|ssh|scp|rsync|nc|netcat|telnet|ftp)\b`),
		},
		{
			Name:        "process_termination",
			Description: "command terminates processes",
			Risk:        RiskHigh,
			Tools:       []string{"execute_command"},
			Param:       "command",
			Pattern:     regexp.MustCompile(`(?i)\b(kill|killall|pkill|taskkill)\b`),
		},
		{
			Name:        "file_overwrite",
			Description: "tool replaces file content",
			Risk:        RiskLow,
			Tools:       []string{"write_file", "edit_file"},
			Param:       "path",
			Existing:    true,
		},
	}
}

type Assessment struct {
	Tool    string   `json:"tool"`
	Rules   []string `json:"rules"`
	Risk    Risk     `json:"risk,omitempty"`
	Blocked bool     `json:"blocked"`
	Reason  string   `json:"reason,omitempty"`
}

type Monitor struct {
	rules []MonitorRule
	log   zerolog.Logger
}

// NewMonitor uses DefaultMonitorRules when no rules are given.
func NewMonitor(rules ...MonitorRule) *Monitor {
	if len(rules) == 0 {
		rules = DefaultMonitorRules()
	}
	return &Monitor{
		rules: rules,
		log:   log.With().Str("component", "safety_monitor").Logger(),
	}
}

// Assess matches the call against every rule. The sandbox resolves paths for
// rules that only apply to existing files; it may be nil.
func (m *Monitor) Assess(sandbox *Sandbox, tool string, params map[string]any) Assessment {
	a := Assessment{Tool: tool, Rules: make([]string, 0)}
	for _, r := range m.rules {
		if !r.appliesTo(tool) {
			continue
		}
		text, _ := params[r.Param].(string)
		if r.Pattern != nil && !r.Pattern.MatchString(text) {
			continue
		}
		if r.Existing && !existingFile(sandbox, text) {
			continue
		}
		a.Rules = append(a.Rules, r.Name)
		if riskOrder[r.Risk] > riskOrder[a.Risk] {
			a.Risk = r.Risk
		}
		if r.Block && !a.Blocked {
			a.Blocked = true
			a.Reason = fmt.Sprintf("%s: %s", r.Name, r.Description)
		}
	}
	return a
}

// Check logs every flagged call and returns a PolicyViolation for blocking rules.
func (m *Monitor) Check(sandbox *Sandbox, tool string, params map[string]any) error {
	a := m.Assess(sandbox, tool, params)
	if len(a.Rules) == 0 {
		return nil
	}
	ev := m.log.Warn()
	if !a.Blocked {
		ev = m.log.Info()
	}
	ev.Str("tool", tool).Str("risk", string(a.Risk)).Strs("rules", a.Rules).Bool("blocked", a.Blocked).Msg("safety rules matched")
	if !a.Blocked {
		return nil
	}
	return &PolicyViolation{Rule: strings.SplitN(a.Reason, ":", 2)[0], Risk: a.Risk, Reason: a.Reason}
}

func (r MonitorRule) appliesTo(tool string) bool {
	for _, t := range r.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

func existingFile(sandbox *Sandbox, relative string) bool {
	if sandbox == nil || relative == "" {
		return false
	}
	path, err := sandbox.SanitizePath(relative)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
