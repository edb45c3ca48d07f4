// Package orchestrator runs one conversation turn per inbound message:
// gating, the reply decision, the completion round trip with an optional
// tool call, and delivery. It is the single boundary that converts a turn
// failure into a user notice plus an operational log entry.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/banterworks/banter/internal/config"
	"github.com/banterworks/banter/internal/history"
	"github.com/banterworks/banter/internal/prompt"
	"github.com/banterworks/banter/internal/providers"
	"github.com/banterworks/banter/internal/tokens"
)

// ChatClient is the chat-completion collaborator.
type ChatClient interface {
	Complete(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error)
}

// ImageClient is the image-generation collaborator.
type ImageClient interface {
	Generate(ctx context.Context, req providers.ImageRequest) (*providers.ImageResult, error)
}

// Replier delivers messages back into the conversation. Reply returns the
// id of the sent message so chunks can be chained off each other.
type Replier interface {
	Reply(ctx context.Context, replyToID, text string) (sentID string, err error)
	ReplyWithImage(ctx context.Context, replyToID, text, filename string, image []byte) (sentID string, err error)
}

// OptionsResolver supplies the layered channel options.
type OptionsResolver interface {
	Resolve(guildID, channelID, categoryID string) (config.ChannelOptions, bool)
}

// ErrorSink receives turn failures for operational reporting, in addition
// to the user-facing notice the orchestrator sends itself.
type ErrorSink interface {
	ReportError(ctx context.Context, channelID string, err error)
}

// Incoming is one inbound conversational message, already stripped of
// platform bookkeeping. Bot and system authors are expected to be filtered
// upstream, but FromBot is honored here as a second line.
type Incoming struct {
	MessageID   string
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
	ChannelTopic string
	CategoryID  string
	AuthorID    string
	AuthorName  string
	Content     string
	MentionsBot  bool
	RepliesToBot bool
	FromBot      bool
}

// Config wires an Orchestrator.
type Config struct {
	Chat          ChatClient
	Images        ImageClient
	Cache         *history.Cache
	Counter       tokens.Counter
	Prompts       *prompt.Assembler
	Options       OptionsResolver
	Errors        ErrorSink // nil = log only
	Tracer        trace.Tracer
	CommandPrefix string
	ContextWindow int

	// RepliesPerMinute throttles replies per channel; throttled messages
	// still land in history. Zero disables the throttle.
	RepliesPerMinute int
}

// Orchestrator drives turns. Many turns run concurrently, one goroutine per
// inbound message; the context cache is the only shared mutable state.
type Orchestrator struct {
	chat          ChatClient
	images        ImageClient
	cache         *history.Cache
	counter       tokens.Counter
	prompts       *prompt.Assembler
	options       OptionsResolver
	errs          ErrorSink
	tracer        trace.Tracer
	commandPrefix string
	contextWindow int

	replyRate rate.Limit
	burst     int
	limiters  sync.Map // channel id → *rate.Limiter
}

func New(cfg Config) *Orchestrator {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("banter")
	}

	o := &Orchestrator{
		chat:          cfg.Chat,
		images:        cfg.Images,
		cache:         cfg.Cache,
		counter:       cfg.Counter,
		prompts:       cfg.Prompts,
		options:       cfg.Options,
		errs:          cfg.Errors,
		tracer:        tracer,
		commandPrefix: cfg.CommandPrefix,
		contextWindow: cfg.ContextWindow,
	}
	if cfg.RepliesPerMinute > 0 {
		o.replyRate = rate.Limit(float64(cfg.RepliesPerMinute) / 60.0)
		o.burst = cfg.RepliesPerMinute
	}
	return o
}

// HandleMessage processes one inbound message as a full turn. Failures
// inside the turn are terminal for that turn only: one user notice, one
// operational report, and the cached context stays exactly as it was.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg Incoming, rep Replier) {
	opts, ok := o.shouldHandle(msg)
	if !ok {
		return
	}

	userMsg := providers.Message{
		Role:    providers.RoleUser,
		Content: msg.Content,
		Name:    msg.AuthorName,
	}

	if !o.shouldReply(msg, opts) || !o.allowRate(msg.ChannelID) {
		// Silent append: future replies still see the full channel history.
		o.contextFor(msg, opts).Append(userMsg)
		slog.Debug("message appended without reply", "channel_id", msg.ChannelID)
		return
	}

	turnID := uuid.NewString()
	ctx, span := o.tracer.Start(ctx, "conversation.turn",
		trace.WithAttributes(
			attribute.String("turn.id", turnID),
			attribute.String("channel.id", msg.ChannelID),
			attribute.String("guild.id", msg.GuildID),
		))
	defer span.End()

	if err := o.runTurn(ctx, msg, opts, userMsg, rep); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		slog.Error("turn failed",
			"turn_id", turnID,
			"channel_id", msg.ChannelID,
			"author_id", msg.AuthorID,
			"error", err,
		)
		if o.errs != nil {
			o.errs.ReportError(ctx, msg.ChannelID, err)
		}
		o.notifyFailure(ctx, msg, rep, err)
	}
}

// shouldHandle decides whether the message belongs to the conversation
// pipeline at all: not from a bot, not a command, and only in channels with
// resolvable options that have the feature enabled.
func (o *Orchestrator) shouldHandle(msg Incoming) (config.ChannelOptions, bool) {
	if msg.FromBot {
		return config.ChannelOptions{}, false
	}
	if o.commandPrefix != "" && strings.HasPrefix(msg.Content, o.commandPrefix) {
		return config.ChannelOptions{}, false
	}
	opts, ok := o.options.Resolve(msg.GuildID, msg.ChannelID, msg.CategoryID)
	if !ok || !opts.Enabled {
		return config.ChannelOptions{}, false
	}
	return opts, true
}

// shouldReply decides whether the turn calls the model. Mention-only
// channels reply when addressed directly; always-on channels reply to
// everything except configured ignore prefixes (other bots' housekeeping
// chatter), which still get a silent append.
func (o *Orchestrator) shouldReply(msg Incoming, opts config.ChannelOptions) bool {
	if !opts.AlwaysOn {
		return msg.RepliesToBot || msg.MentionsBot
	}
	return !hasIgnorePrefix(msg.Content, opts.IgnorePrefixes)
}

func hasIgnorePrefix(content string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(content, p) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) allowRate(channelID string) bool {
	if o.replyRate == 0 {
		return true
	}
	limAny, _ := o.limiters.LoadOrStore(channelID, rate.NewLimiter(o.replyRate, o.burst))
	return limAny.(*rate.Limiter).Allow()
}

func (o *Orchestrator) channelInfo(msg Incoming) prompt.ChannelInfo {
	return prompt.ChannelInfo{
		ID:        msg.ChannelID,
		Name:      msg.ChannelName,
		Topic:     msg.ChannelTopic,
		GuildName: msg.GuildName,
	}
}

// contextFor returns the channel's cached context, lazily building one with
// a budget derived from the current system prompt and tool definition
// costs. Creation is serialized per channel by the cache.
func (o *Orchestrator) contextFor(msg Incoming, opts config.ChannelOptions) *history.Context {
	return o.cache.GetOrCreate(msg.ChannelID, func() *history.Context {
		system := o.prompts.BuildSystemPrompt(o.channelInfo(msg), opts)
		budget := o.prompts.HistoryBudget(o.counter, o.contextWindow, system)
		return history.NewContext(o.counter, budget)
	})
}

// runTurn is the model-called half of the state machine. New messages are
// committed to the cached context only after successful delivery, so a
// failed turn never leaves partial history behind.
func (o *Orchestrator) runTurn(ctx context.Context, msg Incoming, opts config.ChannelOptions, userMsg providers.Message, rep Replier) error {
	system := o.prompts.BuildSystemPrompt(o.channelInfo(msg), opts)
	convo := o.contextFor(msg, opts)

	req := o.prompts.BuildRequest(system, convo.History(), []providers.Message{userMsg}, true)
	resp, err := o.chat.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == providers.FinishToolCalls {
		return o.runToolTurn(ctx, msg, rep, convo, system, userMsg, choice.Message)
	}

	if err := o.deliverText(ctx, rep, msg.MessageID, choice.Message.Content); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}

	convo.AppendAll([]providers.Message{
		userMsg,
		{Role: providers.RoleAssistant, Content: choice.Message.Content},
	})
	return nil
}

// notifyFailure sends a short human-readable notice into the conversation.
// Best effort: a failed notice is logged, not escalated.
func (o *Orchestrator) notifyFailure(ctx context.Context, msg Incoming, rep Replier, turnErr error) {
	notice := "Sorry, I ran into a problem with that: " + shortError(turnErr)
	if _, err := rep.Reply(ctx, msg.MessageID, notice); err != nil {
		slog.Warn("failed to deliver error notice", "channel_id", msg.ChannelID, "error", err)
	}
}

func shortError(err error) string {
	s := err.Error()
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
