package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/banterworks/banter/internal/history"
	"github.com/banterworks/banter/internal/prompt"
	"github.com/banterworks/banter/internal/providers"
)

// toolCallPlaceholder stands in for the null content of an assistant
// tool-call message when it is echoed back to the API.
const toolCallPlaceholder = "(requesting a tool call)"

// InvalidArgumentsError reports a tool-call argument payload that failed
// validation. Terminal for the turn.
type InvalidArgumentsError struct {
	Tool   string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Reason)
}

// imageGenerationArgs is the validated payload of an image_generation call.
type imageGenerationArgs struct {
	Prompt string `json:"prompt"`
}

// toolInvocation is a variant over the supported tool names; exactly one
// field is set after a successful parse.
type toolInvocation struct {
	ImageGeneration *imageGenerationArgs
}

// singleToolCall extracts the one supported tool call from an assistant
// message. More than one call is a fatal error for the turn.
func singleToolCall(assistant providers.Message) (providers.ToolCall, error) {
	switch len(assistant.ToolCalls) {
	case 1:
		return assistant.ToolCalls[0], nil
	case 0:
		return providers.ToolCall{}, fmt.Errorf("finish reason was tool_calls but the message carries no tool call")
	default:
		return providers.ToolCall{}, fmt.Errorf("model requested %d tool calls; exactly one is supported", len(assistant.ToolCalls))
	}
}

// parseToolCall validates the opaque argument payload against the schema of
// the named tool.
func parseToolCall(call providers.ToolCall) (toolInvocation, error) {
	switch call.Name {
	case prompt.ImageGenerationToolName:
		var args imageGenerationArgs
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return toolInvocation{}, &InvalidArgumentsError{Tool: call.Name, Reason: err.Error()}
		}
		if strings.TrimSpace(args.Prompt) == "" {
			return toolInvocation{}, &InvalidArgumentsError{Tool: call.Name, Reason: "missing required argument: prompt"}
		}
		return toolInvocation{ImageGeneration: &args}, nil
	default:
		return toolInvocation{}, fmt.Errorf("model requested unsupported tool %q", call.Name)
	}
}

// runToolTurn handles the tool branch: acknowledge, execute, ask the model
// to narrate the result, deliver with the artifact attached, then commit
// all four messages. Any failure before delivery leaves the context
// untouched.
func (o *Orchestrator) runToolTurn(ctx context.Context, msg Incoming, rep Replier, convo *history.Context, system, userMsg, assistant providers.Message) error {
	call, err := singleToolCall(assistant)
	if err != nil {
		return err
	}

	invocation, err := parseToolCall(call)
	if err != nil {
		return err
	}

	// Interim acknowledgement: partial assistant text, if any, plus the
	// capability annotation.
	ack := strings.TrimSpace(assistant.Content)
	if ack != "" {
		ack += "\n"
	}
	ack += fmt.Sprintf("(used: %s)", call.Name)

	ackID, err := rep.Reply(ctx, msg.MessageID, ack)
	if err != nil {
		return fmt.Errorf("send tool acknowledgement: %w", err)
	}

	result, err := o.images.Generate(ctx, providers.ImageRequest{
		Prompt: invocation.ImageGeneration.Prompt,
		User:   msg.AuthorID,
	})
	if err != nil {
		return fmt.Errorf("image generation: %w", err)
	}

	// The assistant's tool-call message goes back with non-null content;
	// the synthesized tool result correlates via the original call id.
	assistantMsg := assistant
	if assistantMsg.Content == "" {
		assistantMsg.Content = toolCallPlaceholder
	}
	toolMsg := providers.Message{
		Role:       providers.RoleTool,
		Content:    fmt.Sprintf("Generated an image of: %s", result.Description),
		ToolCallID: call.ID,
	}

	followReq := o.prompts.BuildRequest(system, convo.History(),
		[]providers.Message{userMsg, assistantMsg, toolMsg}, false)
	followResp, err := o.chat.Complete(ctx, followReq)
	if err != nil {
		return fmt.Errorf("follow-up completion: %w", err)
	}
	if len(followResp.Choices) == 0 {
		return fmt.Errorf("follow-up completion returned no choices")
	}

	final := followResp.Choices[0].Message.Content
	artifact := fitAttachment(result.Bytes)
	if err := o.deliverWithImage(ctx, rep, ackID, final, "generated.png", artifact); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}

	convo.AppendAll([]providers.Message{
		userMsg,
		assistantMsg,
		toolMsg,
		{Role: providers.RoleAssistant, Content: final},
	})
	return nil
}
