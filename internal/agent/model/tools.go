package model

// ToolCall is a structured function-call request emitted by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult carries a tool's outcome back into the chat session.
type ToolResult struct {
	CallID string `json:"callId"`
	Name   string `json:"name"`
	// Result is the payload handed to the model, either a plain string
	// (including "ERROR: ..." strings) or a JSON-marshalable structure.
	Result any `json:"result"`
}
