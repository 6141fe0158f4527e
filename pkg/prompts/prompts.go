package prompts

const PlanTemplate = `You are the planning module of an autonomous agent working inside a sandboxed workspace.

Goal: {{.Goal}}
Workspace: {{.Workspace}}

Available tools:
{{.Tools}}

Break the goal into the smallest set of concrete tasks. For every task give:
- id: integer, starting at 1
- type: one of read, write, edit, search, analyze, organize
- description: what the task does
- required_tools: names from the tool list above
- dependencies: ids of tasks that must finish first
- estimated_steps: how many tool calls the task needs

Rules:
- If a task is described in the plural (for example "read the files"), estimated_steps must equal the number of items, not 1.
- execution_order must list every task id, with each task after all of its dependencies.
- Use only the tools listed above.

Reply with exactly one JSON object in a fenced block and nothing else:
` + "```json" + `
{
  "analysis": "short analysis of the goal",
  "tasks": [
    {"id": 1, "type": "read", "description": "...", "required_tools": ["read_file"], "dependencies": [], "estimated_steps": 1}
  ],
  "execution_order": [1],
  "reasoning": "why this plan reaches the goal"
}
` + "```"

const PlanDecisionTemplate = `You are the decision module of an autonomous agent. Choose exactly ONE next step.

Goal: {{.Goal}}
Workspace: {{.Workspace}}

Available tools:
{{.Tools}}

Plan ({{.Completed}}/{{.Total}} tasks complete):
{{.Plan}}

Information already collected:
{{.Collected}}

Recent history (iteration {{.Iteration}} of {{.MaxIterations}}):
{{.History}}
{{- if .Note}}

Note: {{.Note}}
{{- end}}

Rules:
- Make one tool call per reply. Never batch several calls.
- Do not repeat a call that already succeeded; use the collected information.
- Only finish when every task is complete.

Reply with exactly one JSON object in a fenced block:
` + "```json" + `
{
  "thinking": "what you know and what is missing",
  "action": "tool_call",
  "tool": "tool_name",
  "parameters": {"path": "..."}
}
` + "```" + `
or, when the goal is achieved:
` + "```json" + `
{
  "thinking": "...",
  "action": "finish",
  "reason_to_finish": "summary of what was accomplished"
}
` + "```"

const TaskDecisionTemplate = `You are working on one task of a larger goal. Choose exactly ONE next step.

Goal: {{.Goal}}
Workspace: {{.Workspace}}

Current task {{.Task.ID}} ({{.Task.Kind}}): {{.Task.Description}}
Required tools: {{join .Task.RequiredTools ", "}}
Progress: {{.Progress}} (step {{.Step}} of at most {{.MaxSteps}})

Available tools:
{{.Tools}}

Information already collected:
{{.Collected}}

What happened during this task:
{{.History}}

Rules:
- Make one tool call per reply. Never batch several calls.
- Set task_complete to true, without a tool_call, once the task is done.

Reply with exactly one JSON object in a fenced block:
` + "```json" + `
{
  "tool_call": {"tool": "tool_name", "parameters": {"path": "..."}},
  "user_update": "one short sentence for the user",
  "task_complete": false
}
` + "```"
