package models

import (
	"encoding/json"
)

type ActionType string

const (
	ActionToolCall ActionType = "tool_call"
	ActionFinish   ActionType = "finish"
	ActionThink    ActionType = "think"
)

// Action is the single next step chosen by the decision engine. The set of
// implementations is closed: ToolCall, Finish and Think.
type Action interface {
	Type() ActionType
	isAction()
}

type ToolCall struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Reasoning  string         `json:"reasoning,omitempty"`
	UserUpdate string         `json:"user_update,omitempty"`
}

type Finish struct {
	Reasoning string `json:"reasoning"`
	// Fallback is set when the reply could not be understood and the finish was synthesised.
	Fallback bool `json:"fallback,omitempty"`
}

type Think struct {
	Reasoning string `json:"reasoning"`
}

func (ToolCall) Type() ActionType { return ActionToolCall }
func (Finish) Type() ActionType   { return ActionFinish }
func (Think) Type() ActionType    { return ActionThink }

func (ToolCall) isAction() {}
func (Finish) isAction()   {}
func (Think) isAction()    {}

func (a ToolCall) MarshalJSON() ([]byte, error) {
	type alias ToolCall
	return marshalTagged(a.Type(), alias(a))
}

func (a Finish) MarshalJSON() ([]byte, error) {
	type alias Finish
	return marshalTagged(a.Type(), alias(a))
}

func (a Think) MarshalJSON() ([]byte, error) {
	type alias Think
	return marshalTagged(a.Type(), alias(a))
}

func marshalTagged(t ActionType, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(t)
	return json.Marshal(fields)
}
