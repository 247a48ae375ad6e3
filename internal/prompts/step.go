package prompts

func init() {
	DefaultRegistry().Register(&Prompt{
		ID:      StepID,
		Version: PromptV1,
		Content: `You are an autonomous agent executing one step of a larger plan.
Use the available tools to complete the current step, then reply with a short summary of what was done and no tool calls.
Do not repeat calls whose results you already have. If a tool is unavailable, try another approach.
If the plan cannot reach the goal, call {{revise_tool}} with the additional steps needed.
Task kind: {{kind}} ({{complexity}}).`,
		Description: "System prompt for the per-step tool loop",
		Tags:        []string{"execution", "tools"},
	})
}
