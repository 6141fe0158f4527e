package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type setter func(c *Config, v any) error

var options = map[string]setter{
	"port":                    intOpt(func(c *Config) *int { return &c.Server.Port }),
	"log_level":               stringOpt(func(c *Config) *string { return &c.Log.Level }),
	"log_pretty":              boolOpt(func(c *Config) *bool { return &c.Log.Pretty }),
	"workspace_root":          stringOpt(func(c *Config) *string { return &c.Workspace.Root }),
	"allowed_commands":        listOpt(func(c *Config) *[]string { return &c.Security.AllowedCommands }),
	"denied_commands":         listOpt(func(c *Config) *[]string { return &c.Security.DeniedCommands }),
	"command_timeout":         durationOpt(func(c *Config) *time.Duration { return &c.Security.CommandTimeout.Duration }),
	"max_command_output_size": intOpt(func(c *Config) *int { return &c.Security.MaxCommandOutputSize }),
	"max_file_size":           intOpt(func(c *Config) *int { return &c.Security.MaxFileSize }),
	"safety_monitor":          boolOpt(func(c *Config) *bool { return &c.Security.SafetyMonitor }),
	"max_iterations":          intOpt(func(c *Config) *int { return &c.Behavior.MaxIterations }),
	"max_tool_calls_per_turn": intOpt(func(c *Config) *int { return &c.Behavior.MaxToolCallsPerTurn }),
	"task_step_slack":         intOpt(func(c *Config) *int { return &c.Behavior.TaskStepSlack }),
	"max_finish_rejections":   intOpt(func(c *Config) *int { return &c.Behavior.MaxFinishRejections }),
	"history_window":          intOpt(func(c *Config) *int { return &c.Behavior.HistoryWindow }),
	"stop_timeout":            durationOpt(func(c *Config) *time.Duration { return &c.Behavior.StopTimeout.Duration }),
	"mode":                    stringOpt(func(c *Config) *string { return &c.Behavior.Mode }),
	"requests_per_second":     floatOpt(func(c *Config) *float64 { return &c.Model.RequestsPerSecond }),
	"burst":                   intOpt(func(c *Config) *int { return &c.Model.Burst }),
	"model_timeout":           durationOpt(func(c *Config) *time.Duration { return &c.Model.Timeout.Duration }),
	"nats_url":                stringOpt(func(c *Config) *string { return &c.Events.NATSURL }),
	"subject_prefix":          stringOpt(func(c *Config) *string { return &c.Events.SubjectPrefix }),
}

func intOpt(field func(*Config) *int) setter {
	return func(c *Config, v any) error {
		switch n := v.(type) {
		case int:
			*field(c) = n
		case int64:
			*field(c) = int(n)
		case float64:
			if n != float64(int(n)) {
				return fmt.Errorf("%v is not an integer", n)
			}
			*field(c) = int(n)
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return fmt.Errorf("%q is not an integer", n)
			}
			*field(c) = i
		default:
			return fmt.Errorf("unexpected type %T", v)
		}
		return nil
	}
}

func floatOpt(field func(*Config) *float64) setter {
	return func(c *Config, v any) error {
		switch n := v.(type) {
		case float64:
			*field(c) = n
		case int:
			*field(c) = float64(n)
		case int64:
			*field(c) = float64(n)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return fmt.Errorf("%q is not a number", n)
			}
			*field(c) = f
		default:
			return fmt.Errorf("unexpected type %T", v)
		}
		return nil
	}
}

func boolOpt(field func(*Config) *bool) setter {
	return func(c *Config, v any) error {
		switch b := v.(type) {
		case bool:
			*field(c) = b
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return fmt.Errorf("%q is not a boolean", b)
			}
			*field(c) = parsed
		default:
			return fmt.Errorf("unexpected type %T", v)
		}
		return nil
	}
}

func stringOpt(field func(*Config) *string) setter {
	return func(c *Config, v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T", v)
		}
		*field(c) = strings.TrimSpace(s)
		return nil
	}
}

// listOpt accepts a list or a comma separated string.
func listOpt(field func(*Config) *[]string) setter {
	return func(c *Config, v any) error {
		res := make([]string, 0)
		switch l := v.(type) {
		case []string:
			res = append(res, l...)
		case []any:
			for _, item := range l {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("list item %v is not a string", item)
				}
				res = append(res, s)
			}
		case string:
			for _, s := range strings.Split(l, ",") {
				if s = strings.TrimSpace(s); s != "" {
					res = append(res, s)
				}
			}
		default:
			return fmt.Errorf("unexpected type %T", v)
		}
		*field(c) = res
		return nil
	}
}

// durationOpt accepts seconds as a number or a duration string.
func durationOpt(field func(*Config) *time.Duration) setter {
	return func(c *Config, v any) error {
		switch d := v.(type) {
		case time.Duration:
			*field(c) = d
		case int:
			*field(c) = time.Duration(d) * time.Second
		case int64:
			*field(c) = time.Duration(d) * time.Second
		case float64:
			*field(c) = time.Duration(d * float64(time.Second))
		case string:
			parsed, err := parseDuration(d)
			if err != nil {
				return err
			}
			*field(c) = parsed
		default:
			return fmt.Errorf("unexpected type %T", v)
		}
		return nil
	}
}
