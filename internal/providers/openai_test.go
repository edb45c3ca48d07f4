package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteParsesTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		io.WriteString(w, `{
			"choices": [{"message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
		}`)
	}))
	defer srv.Close()

	c := NewChatClient("test-key", srv.URL)
	resp, err := c.Complete(context.Background(), ChatRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("len(Choices) = %d, want 1", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Message.Content != "hello there" {
		t.Errorf("Content = %q", choice.Message.Content)
	}
	if choice.FinishReason != FinishStop {
		t.Errorf("FinishReason = %q, want %q", choice.FinishReason, FinishStop)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 13 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestCompleteParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "image_generation", "arguments": "{\"prompt\":\"a red fox\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`)
	}))
	defer srv.Close()

	c := NewChatClient("k", srv.URL)
	resp, err := c.Complete(context.Background(), ChatRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	choice := resp.Choices[0]
	if choice.FinishReason != FinishToolCalls {
		t.Errorf("FinishReason = %q, want %q", choice.FinishReason, FinishToolCalls)
	}
	if choice.Message.Content != "" {
		t.Errorf("Content = %q, want empty for null content", choice.Message.Content)
	}
	if len(choice.Message.ToolCalls) != 1 {
		t.Fatalf("len(ToolCalls) = %d, want 1", len(choice.Message.ToolCalls))
	}
	tc := choice.Message.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "image_generation" {
		t.Errorf("ToolCall = %+v", tc)
	}
	var args struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil || args.Prompt != "a red fox" {
		t.Errorf("Arguments = %s (err %v)", tc.Arguments, err)
	}
}

func TestCompleteNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer srv.Close()

	c := NewChatClient("k", srv.URL)
	_, err := c.Complete(context.Background(), ChatRequest{Model: "gpt-4o"})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", httpErr.Status)
	}
	if httpErr.Body == "" {
		t.Error("Body is empty, want upstream payload")
	}
}

func TestBuildRequestBodyToolFields(t *testing.T) {
	withTools := buildRequestBody(ChatRequest{
		Model: "gpt-4o",
		Tools: []ToolDefinition{{Type: "function"}},
	})
	if _, ok := withTools["tools"]; !ok {
		t.Error("tools field missing when tools attached")
	}
	if got, ok := withTools["parallel_tool_calls"]; !ok || got != false {
		t.Errorf("parallel_tool_calls = %v, %v; want false, true", got, ok)
	}

	bare := buildRequestBody(ChatRequest{Model: "gpt-4o"})
	if _, ok := bare["tools"]; ok {
		t.Error("tools field present without attached tools")
	}
	if _, ok := bare["parallel_tool_calls"]; ok {
		t.Error("parallel_tool_calls present without attached tools")
	}
}

func TestBuildRequestBodyWireMessages(t *testing.T) {
	body := buildRequestBody(ChatRequest{
		Model: "gpt-4o",
		Messages: []Message{
			{Role: RoleUser, Content: "hi", Name: "Sam"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{
				{ID: "call_1", Name: "image_generation", Arguments: json.RawMessage(`{"prompt":"x"}`)},
			}},
			{Role: RoleTool, Content: "done", ToolCallID: "call_1"},
		},
	})

	msgs := body["messages"].([]map[string]any)
	if len(msgs) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(msgs))
	}

	if msgs[0]["name"] != "Sam" {
		t.Errorf("user name = %v, want Sam", msgs[0]["name"])
	}
	if _, ok := msgs[0]["tool_call_id"]; ok {
		t.Error("tool_call_id present on a plain user message")
	}

	calls := msgs[1]["tool_calls"].([]map[string]any)
	if len(calls) != 1 {
		t.Fatalf("len(tool_calls) = %d, want 1", len(calls))
	}
	if calls[0]["type"] != "function" {
		t.Errorf("tool call type = %v, want function", calls[0]["type"])
	}
	fn := calls[0]["function"].(map[string]any)
	if fn["name"] != "image_generation" {
		t.Errorf("function name = %v", fn["name"])
	}
	if _, ok := fn["arguments"].(string); !ok {
		t.Errorf("arguments = %T, want string", fn["arguments"])
	}

	if msgs[2]["tool_call_id"] != "call_1" {
		t.Errorf("tool_call_id = %v, want call_1", msgs[2]["tool_call_id"])
	}
}

func TestParseResponseDefaultsFinishReason(t *testing.T) {
	var wire wireResponse
	raw := `{"choices": [{"message": {"role": "assistant", "content": "hi"}}]}`
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	resp := parseResponse(&wire)
	if resp.Choices[0].FinishReason != FinishStop {
		t.Errorf("FinishReason = %q, want %q", resp.Choices[0].FinishReason, FinishStop)
	}
}
