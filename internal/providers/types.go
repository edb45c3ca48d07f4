package providers

import "encoding/json"

// Message roles on the chat-completion wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reasons reported by the chat-completion API.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishToolCalls     = "tool_calls"
)

// Message is one conversation turn. Messages are immutable once constructed;
// a tool message must carry the ToolCallID of the assistant call it answers.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a capability invocation requested by the model. Arguments stay
// opaque here; the orchestrator validates them per tool name.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes one capability exposed to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is the JSON-schema description of a function tool.
type ToolFunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is the input for one completion call. Tools are attached only
// when the caller permits a tool round trip; when absent, neither the tools
// field nor parallel_tool_calls appears on the wire (the API rejects an
// empty tools array).
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []ToolDefinition
}

// Choice is one candidate answer from the model.
type Choice struct {
	Message      Message
	FinishReason string
}

// ChatResponse is the parsed completion result.
type ChatResponse struct {
	Choices []Choice
	Usage   *Usage
}

// Usage tracks token consumption reported by the API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ImageRequest is the input for one image generation call. User carries an
// opaque originator identifier passed through to the API.
type ImageRequest struct {
	Prompt string
	User   string
	Size   string
}

// ImageResult is one generated artifact resolved to raw bytes.
type ImageResult struct {
	Bytes       []byte
	Description string
}
