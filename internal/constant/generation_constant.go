package constant

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleSystem    = "system"

	MessageKindText = "text"
	MessageKindTool = "tool"

	// SystemPromptAppBuilderV1 is the base instruction set seeded into every
	// generation alongside the session history.
	SystemPromptAppBuilderV1 = `You are an expert application builder. The user describes the application they want in natural language; you produce the code and explain the key decisions as you go.

RULES:
1. Work incrementally: describe what you are about to generate, then generate it.
2. When you invoke a tool (scaffolding, file write, dependency install), state why in one short sentence first.
3. Never fabricate the result of a tool invocation; wait for its output.
4. Keep explanations short. The code is the deliverable.`

	// PriorContextMessageLimit bounds how much session history seeds a
	// (re)started generation.
	PriorContextMessageLimit = 50
)
