// Package prompt assembles the system prompt and the outbound
// chat-completion request for a channel.
package prompt

import (
	"encoding/json"
	"strings"

	"github.com/banterworks/banter/internal/config"
	"github.com/banterworks/banter/internal/providers"
	"github.com/banterworks/banter/internal/tokens"
)

// boilerplate is the global base of every system prompt. Template variables
// are substituted by literal string replacement after the layers are
// concatenated, so prompt authors must avoid accidental literal braces.
var boilerplate = []string{
	"You are a friendly, helpful member of the {guildName} Discord community.",
	"Keep answers conversational and concise; this is a chat, not an essay.",
	"You may be shown messages from several people, each prefixed with their name.",
}

const channelContextTemplate = "You are chatting in #{channelName}. This channel is about: {channelTopic}"

const guidelinesHeader = "Channel guidelines:"

// ChannelInfo is the platform-side identity of the channel being prompted.
type ChannelInfo struct {
	ID        string
	Name      string
	Topic     string
	GuildName string
}

// Assembler builds system prompts and completion requests with fixed
// generation constants.
type Assembler struct {
	model             string
	temperature       float64
	maxResponseTokens int
	tools             []providers.ToolDefinition
}

func NewAssembler(model string, temperature float64, maxResponseTokens int) *Assembler {
	return &Assembler{
		model:             model,
		temperature:       temperature,
		maxResponseTokens: maxResponseTokens,
		tools:             []providers.ToolDefinition{imageGenerationTool},
	}
}

// BuildSystemPrompt assembles exactly one system message from the layered
// configuration: global boilerplate, a channel-context line when a topic is
// resolvable (explicit option first, the channel's own topic as fallback),
// and the channel guidelines block.
func (a *Assembler) BuildSystemPrompt(ch ChannelInfo, opts config.ChannelOptions) providers.Message {
	var b strings.Builder
	for _, line := range boilerplate {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	topic := opts.Topic
	if topic == "" {
		topic = ch.Topic
	}
	if topic != "" {
		b.WriteString(channelContextTemplate)
		b.WriteByte('\n')
	}

	if len(opts.Prompt) > 0 {
		b.WriteString(guidelinesHeader)
		b.WriteByte('\n')
		for _, line := range opts.Prompt {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	text := strings.NewReplacer(
		"{guildName}", ch.GuildName,
		"{channelName}", ch.Name,
		"{channelTopic}", topic,
	).Replace(strings.TrimRight(b.String(), "\n"))

	return providers.Message{Role: providers.RoleSystem, Content: text}
}

// BuildRequest concatenates system prompt, prior turns, and the new
// messages. Tool definitions ride along only when allowToolCalls is true;
// the client omits the tools field entirely otherwise.
func (a *Assembler) BuildRequest(system providers.Message, history []providers.Message, incoming []providers.Message, allowToolCalls bool) providers.ChatRequest {
	msgs := make([]providers.Message, 0, 1+len(history)+len(incoming))
	msgs = append(msgs, system)
	msgs = append(msgs, history...)
	msgs = append(msgs, incoming...)

	req := providers.ChatRequest{
		Model:       a.model,
		Messages:    msgs,
		Temperature: a.temperature,
		MaxTokens:   a.maxResponseTokens,
	}
	if allowToolCalls {
		req.Tools = a.tools
	}
	return req
}

// HistoryBudget returns the token budget left for prior turns once the
// generation reserve, the system prompt, and the tool definitions are paid
// for out of the model's context window.
func (a *Assembler) HistoryBudget(counter tokens.Counter, contextWindow int, system providers.Message) int {
	budget := contextWindow - a.maxResponseTokens - counter.CountMessage(system) - a.toolDefinitionCost(counter)
	if budget < 0 {
		budget = 0
	}
	return budget
}

// toolDefinitionCost approximates the prompt cost of the tool schemas by
// counting their JSON serialization.
func (a *Assembler) toolDefinitionCost(counter tokens.Counter) int {
	raw, err := json.Marshal(a.tools)
	if err != nil {
		return 0
	}
	return counter.CountText(string(raw))
}
