package prompt

import (
	"strings"
	"testing"

	"github.com/banterworks/banter/internal/config"
	"github.com/banterworks/banter/internal/providers"
)

// lenCounter charges one token per byte of content plus a flat 4 per message.
type lenCounter struct{}

func (lenCounter) CountText(s string) int { return len(s) }

func (c lenCounter) CountMessage(m providers.Message) int {
	return 4 + len(m.Role) + len(m.Name) + len(m.Content)
}

func (c lenCounter) CountMessages(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.CountMessage(m)
	}
	return total
}

func testChannel() ChannelInfo {
	return ChannelInfo{
		ID:        "123",
		Name:      "gardening",
		Topic:     "All things that grow",
		GuildName: "Green Thumbs",
	}
}

func TestBuildSystemPromptSubstitutesVariables(t *testing.T) {
	a := NewAssembler("gpt-4o", 0.7, 1024)

	msg := a.BuildSystemPrompt(testChannel(), config.ChannelOptions{})

	if msg.Role != providers.RoleSystem {
		t.Fatalf("role = %q, want system", msg.Role)
	}
	for _, want := range []string{"Green Thumbs", "#gardening", "All things that grow"} {
		if !strings.Contains(msg.Content, want) {
			t.Errorf("system prompt missing %q:\n%s", want, msg.Content)
		}
	}
	for _, stray := range []string{"{guildName}", "{channelName}", "{channelTopic}"} {
		if strings.Contains(msg.Content, stray) {
			t.Errorf("system prompt contains unsubstituted %q", stray)
		}
	}
}

func TestBuildSystemPromptTopicPrecedence(t *testing.T) {
	a := NewAssembler("gpt-4o", 0.7, 1024)

	tests := []struct {
		name      string
		optTopic  string
		chTopic   string
		wantTopic string
		wantLine  bool
	}{
		{"configured topic wins", "Only roses", "All things that grow", "Only roses", true},
		{"falls back to channel topic", "", "All things that grow", "All things that grow", true},
		{"no topic drops the line", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := testChannel()
			ch.Topic = tt.chTopic
			msg := a.BuildSystemPrompt(ch, config.ChannelOptions{Topic: tt.optTopic})

			hasLine := strings.Contains(msg.Content, "This channel is about:")
			if hasLine != tt.wantLine {
				t.Fatalf("channel-context line present = %v, want %v\n%s", hasLine, tt.wantLine, msg.Content)
			}
			if tt.wantLine && !strings.Contains(msg.Content, tt.wantTopic) {
				t.Errorf("system prompt missing topic %q:\n%s", tt.wantTopic, msg.Content)
			}
		})
	}
}

func TestBuildSystemPromptGuidelines(t *testing.T) {
	a := NewAssembler("gpt-4o", 0.7, 1024)

	msg := a.BuildSystemPrompt(testChannel(), config.ChannelOptions{
		Prompt: []string{"Stay on topic", "No spoilers"},
	})

	if !strings.Contains(msg.Content, "Channel guidelines:") {
		t.Fatalf("missing guidelines header:\n%s", msg.Content)
	}
	if !strings.Contains(msg.Content, "- Stay on topic\n- No spoilers") {
		t.Errorf("guideline lines not rendered as a list:\n%s", msg.Content)
	}

	plain := a.BuildSystemPrompt(testChannel(), config.ChannelOptions{})
	if strings.Contains(plain.Content, "Channel guidelines:") {
		t.Error("guidelines header present with no configured guidelines")
	}
}

func TestBuildRequestOrderAndConstants(t *testing.T) {
	a := NewAssembler("gpt-4o", 0.7, 1024)
	system := providers.Message{Role: providers.RoleSystem, Content: "sys"}
	history := []providers.Message{
		{Role: providers.RoleUser, Content: "h1"},
		{Role: providers.RoleAssistant, Content: "h2"},
	}
	incoming := []providers.Message{{Role: providers.RoleUser, Content: "new"}}

	req := a.BuildRequest(system, history, incoming, true)

	if req.Model != "gpt-4o" || req.Temperature != 0.7 || req.MaxTokens != 1024 {
		t.Errorf("request constants = (%s, %v, %d)", req.Model, req.Temperature, req.MaxTokens)
	}
	wantContents := []string{"sys", "h1", "h2", "new"}
	if len(req.Messages) != len(wantContents) {
		t.Fatalf("len(Messages) = %d, want %d", len(req.Messages), len(wantContents))
	}
	for i, want := range wantContents {
		if req.Messages[i].Content != want {
			t.Errorf("Messages[%d].Content = %q, want %q", i, req.Messages[i].Content, want)
		}
	}
	if len(req.Tools) == 0 {
		t.Error("tools missing from a tool-enabled request")
	}
}

func TestBuildRequestOmitsToolsWhenDisallowed(t *testing.T) {
	a := NewAssembler("gpt-4o", 0.7, 1024)
	req := a.BuildRequest(providers.Message{Role: providers.RoleSystem}, nil, nil, false)
	if req.Tools != nil {
		t.Errorf("Tools = %v, want nil", req.Tools)
	}
}

func TestHistoryBudget(t *testing.T) {
	a := NewAssembler("gpt-4o", 0.7, 1000)
	counter := lenCounter{}
	system := providers.Message{Role: providers.RoleSystem, Content: strings.Repeat("x", 90)}

	// window - reserve - system cost - tool schema cost
	want := 8000 - 1000 - counter.CountMessage(system) - a.toolDefinitionCost(counter)
	if got := a.HistoryBudget(counter, 8000, system); got != want {
		t.Errorf("HistoryBudget() = %d, want %d", got, want)
	}
}

func TestHistoryBudgetClampsAtZero(t *testing.T) {
	a := NewAssembler("gpt-4o", 0.7, 1000)
	if got := a.HistoryBudget(lenCounter{}, 500, providers.Message{Role: providers.RoleSystem}); got != 0 {
		t.Errorf("HistoryBudget() = %d, want 0", got)
	}
}
