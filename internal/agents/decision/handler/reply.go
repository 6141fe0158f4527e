package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go-autoagent/pkg/models"
	"strings"
)

// reply is the decoded shape of a decision answer. Every shape maps to exactly
// one Action in toAction.
type reply interface {
	isReply()
}

type toolCallReply struct {
	Tool       string
	Parameters map[string]any
	Thinking   string
	UserUpdate string
}

type batchReply struct {
	Calls      []toolCallReply
	Thinking   string
	UserUpdate string
}

type finishReply struct {
	Reasoning string
}

type thinkReply struct {
	Reasoning string
}

type taskCompleteReply struct {
	UserUpdate string
}

type invalidReply struct {
	Reason string
}

func (toolCallReply) isReply()     {}
func (batchReply) isReply()        {}
func (finishReply) isReply()       {}
func (thinkReply) isReply()        {}
func (taskCompleteReply) isReply() {}
func (invalidReply) isReply()      {}

type rawCall struct {
	Tool       string         `json:"tool"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"`
}

func (c rawCall) toReply(thinking, update string) toolCallReply {
	r := toolCallReply{Tool: strings.TrimSpace(c.Tool), Parameters: c.Parameters, Thinking: thinking, UserUpdate: update}
	if r.Tool == "" {
		r.Tool = strings.TrimSpace(c.Name)
	}
	if r.Parameters == nil {
		r.Parameters = c.Arguments
	}
	return r
}

func batch(calls []rawCall, thinking, update string) batchReply {
	b := batchReply{Thinking: thinking, UserUpdate: update, Calls: make([]toolCallReply, 0, len(calls))}
	for _, c := range calls {
		b.Calls = append(b.Calls, c.toReply(thinking, update))
	}
	return b
}

type planShape struct {
	Thinking       string         `json:"thinking"`
	Action         string         `json:"action"`
	Tool           string         `json:"tool"`
	Parameters     map[string]any `json:"parameters"`
	ReasonToFinish string         `json:"reason_to_finish"`
	ToolCalls      []rawCall      `json:"tool_calls"`
}

// decodePlanReply reads {thinking, action, tool, parameters, reason_to_finish}.
func decodePlanReply(block string) reply {
	var raw planShape
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return invalidReply{Reason: fmt.Sprintf("malformed reply: %v", err)}
	}
	if len(raw.ToolCalls) > 0 {
		return batch(raw.ToolCalls, raw.Thinking, "")
	}

	switch strings.ToLower(strings.TrimSpace(raw.Action)) {
	case "tool_call", "tool", "call":
		if strings.TrimSpace(raw.Tool) == "" {
			return invalidReply{Reason: "tool_call reply has no tool"}
		}
		return rawCall{Tool: raw.Tool, Parameters: raw.Parameters}.toReply(raw.Thinking, "")
	case "finish", "done", "complete":
		reason := strings.TrimSpace(raw.ReasonToFinish)
		if reason == "" {
			reason = strings.TrimSpace(raw.Thinking)
		}
		if reason == "" {
			reason = "the model declared the goal complete"
		}
		return finishReply{Reasoning: reason}
	case "think":
		return thinkReply{Reasoning: raw.Thinking}
	case "":
		return invalidReply{Reason: "reply has no action"}
	default:
		return invalidReply{Reason: fmt.Sprintf("unknown action %q", raw.Action)}
	}
}

type taskShape struct {
	ToolCall     json.RawMessage `json:"tool_call"`
	ToolCalls    []rawCall       `json:"tool_calls"`
	UserUpdate   string          `json:"user_update"`
	TaskComplete bool            `json:"task_complete"`
	Thinking     string          `json:"thinking"`
}

// decodeTaskReply reads {tool_call: {tool, parameters}, user_update, task_complete}.
// A tool call wins over task_complete when both are present.
func decodeTaskReply(block string) reply {
	var raw taskShape
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return invalidReply{Reason: fmt.Sprintf("malformed reply: %v", err)}
	}
	if len(raw.ToolCalls) > 0 {
		return batch(raw.ToolCalls, raw.Thinking, raw.UserUpdate)
	}

	call := bytes.TrimSpace(raw.ToolCall)
	switch {
	case len(call) > 0 && call[0] == '[':
		var calls []rawCall
		if err := json.Unmarshal(call, &calls); err != nil {
			return invalidReply{Reason: fmt.Sprintf("malformed tool_call list: %v", err)}
		}
		if len(calls) > 0 {
			return batch(calls, raw.Thinking, raw.UserUpdate)
		}
	case len(call) > 0 && call[0] == '{':
		var c rawCall
		if err := json.Unmarshal(call, &c); err != nil {
			return invalidReply{Reason: fmt.Sprintf("malformed tool_call: %v", err)}
		}
		r := c.toReply(raw.Thinking, raw.UserUpdate)
		if r.Tool == "" {
			return invalidReply{Reason: "tool_call has no tool"}
		}
		return r
	}

	if raw.TaskComplete {
		return taskCompleteReply{UserUpdate: raw.UserUpdate}
	}
	return invalidReply{Reason: "reply has neither tool_call nor task_complete"}
}

// toAction maps a reply to the single action it allows. Batches keep only their first call.
func (h *Handler) toAction(r reply) models.Action {
	switch v := r.(type) {
	case toolCallReply:
		return toolCall(v)
	case batchReply:
		h.log.Warn().Int("calls", len(v.Calls)).Msg("model batched several tool calls, only the first one is used")
		if len(v.Calls) == 0 || v.Calls[0].Tool == "" {
			return models.Finish{Reasoning: "could not understand the model reply: batched call has no tool", Fallback: true}
		}
		return toolCall(v.Calls[0])
	case finishReply:
		return models.Finish{Reasoning: v.Reasoning}
	case thinkReply:
		return models.Think{Reasoning: v.Reasoning}
	case taskCompleteReply:
		reason := "task complete"
		if v.UserUpdate != "" {
			reason += ": " + v.UserUpdate
		}
		return models.Finish{Reasoning: reason}
	case invalidReply:
		h.log.Warn().Str("reason", v.Reason).Msg("unusable decision reply, finishing")
		return models.Finish{Reasoning: "could not understand the model reply: " + v.Reason, Fallback: true}
	default:
		return models.Finish{Reasoning: "could not understand the model reply", Fallback: true}
	}
}

func toolCall(r toolCallReply) models.ToolCall {
	params := r.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return models.ToolCall{Tool: r.Tool, Parameters: params, Reasoning: r.Thinking, UserUpdate: r.UserUpdate}
}
