package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ChatClient talks to an OpenAI-compatible chat-completions endpoint.
type ChatClient struct {
	apiKey   string
	apiBase  string
	chatPath string
	client   *http.Client
}

func NewChatClient(apiKey, apiBase string) *ChatClient {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	return &ChatClient{
		apiKey:   apiKey,
		apiBase:  apiBase,
		chatPath: "/chat/completions",
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends one chat-completion request and parses the response.
func (c *ChatClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := buildRequestBody(req)

	respBody, err := c.doRequest(ctx, c.apiBase+c.chatPath, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var wire wireResponse
	if err := json.NewDecoder(respBody).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}

	return parseResponse(&wire), nil
}

// buildRequestBody converts a ChatRequest to the OpenAI wire format.
// Our internal Message/ToolCall structs don't match the wire shape exactly:
// tool_calls need the type+function wrapper with arguments as a JSON string.
// The tools and parallel_tool_calls fields are omitted entirely when no tools
// are attached.
func buildRequestBody(req ChatRequest) map[string]any {
	msgs := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := map[string]any{
			"role":    m.Role,
			"content": m.Content,
		}
		if m.Name != "" {
			msg["name"] = m.Name
		}

		if len(m.ToolCalls) > 0 {
			toolCalls := make([]map[string]any, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				toolCalls[i] = map[string]any{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]any{
						"name":      tc.Name,
						"arguments": string(tc.Arguments),
					},
				}
			}
			msg["tool_calls"] = toolCalls
		}

		if m.ToolCallID != "" {
			msg["tool_call_id"] = m.ToolCallID
		}

		msgs = append(msgs, msg)
	}

	body := map[string]any{
		"model":       req.Model,
		"messages":    msgs,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}

	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
		body["parallel_tool_calls"] = false
	}

	return body
}

func (c *ChatClient) doRequest(ctx context.Context, url string, body any) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return resp.Body, nil
}

// wireResponse is the raw chat-completions response shape. Content is
// nullable on assistant messages carrying tool calls.
type wireResponse struct {
	Choices []struct {
		Message struct {
			Role      string  `json:"role"`
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func parseResponse(wire *wireResponse) *ChatResponse {
	result := &ChatResponse{Usage: wire.Usage}

	for _, wc := range wire.Choices {
		msg := Message{Role: wc.Message.Role}
		if wc.Message.Content != nil {
			msg.Content = *wc.Message.Content
		}
		for _, tc := range wc.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      strings.TrimSpace(tc.Function.Name),
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}

		finish := wc.FinishReason
		if len(msg.ToolCalls) > 0 {
			finish = FinishToolCalls
		} else if finish == "" {
			finish = FinishStop
		}

		result.Choices = append(result.Choices, Choice{Message: msg, FinishReason: finish})
	}

	return result
}
