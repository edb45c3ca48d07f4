// Package discord adapts the Discord gateway to the conversation
// orchestrator: inbound message events become turns, replies go back out as
// chained messages with optional attachments.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/banterworks/banter/internal/config"
	"github.com/banterworks/banter/internal/orchestrator"
)

// Channel connects to Discord via the Bot API using gateway events. Each
// inbound message is dispatched on its own goroutine; the run context is
// cancelled on shutdown so in-flight API calls stop promptly.
type Channel struct {
	session *discordgo.Session
	orc     *orchestrator.Orchestrator
	cfg     config.DiscordConfig

	botUserID string // populated on start

	runCtx context.Context
	cancel context.CancelFunc
	turns  sync.WaitGroup
}

// New creates a Discord channel from config. The orchestrator is injected
// (possibly after construction, since the channel also serves as its error
// sink); this package owns no conversation state.
func New(cfg config.DiscordConfig, orc *orchestrator.Orchestrator) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		session: session,
		orc:     orc,
		cfg:     cfg,
	}, nil
}

// SetOrchestrator injects the orchestrator. Must be called before Start.
func (c *Channel) SetOrchestrator(orc *orchestrator.Orchestrator) {
	c.orc = orc
}

// Start opens the gateway connection and begins receiving events. ctx
// bounds the lifetime of every turn started by this channel.
func (c *Channel) Start(ctx context.Context) error {
	if c.orc == nil {
		return fmt.Errorf("discord channel started without an orchestrator")
	}

	slog.Info("starting discord bot")

	c.runCtx, c.cancel = context.WithCancel(ctx)
	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		c.cancel()
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		c.cancel()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop cancels in-flight turns, waits for them to drain, and closes the
// gateway connection.
func (c *Channel) Stop() error {
	slog.Info("stopping discord bot")
	if c.cancel != nil {
		c.cancel()
	}
	c.turns.Wait()
	return c.session.Close()
}

// handleMessage converts a gateway event into a turn. Bot and system
// authors never enter the pipeline.
func (c *Channel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}
	if m.GuildID == "" {
		// Conversations are guild-channel scoped; DMs are not part of them.
		return
	}

	inc := c.buildIncoming(s, m)

	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		c.orc.HandleMessage(c.runCtx, inc, &replier{
			session:   c.session,
			channelID: m.ChannelID,
			guildID:   m.GuildID,
		})
	}()
}

func (c *Channel) buildIncoming(s *discordgo.Session, m *discordgo.MessageCreate) orchestrator.Incoming {
	inc := orchestrator.Incoming{
		MessageID:  m.ID,
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: resolveDisplayName(m),
		Content:    m.Content,
	}

	if ch, err := channelFor(s, m.ChannelID); err == nil {
		inc.ChannelName = ch.Name
		inc.ChannelTopic = ch.Topic
		inc.CategoryID = ch.ParentID
	} else {
		slog.Warn("failed to resolve channel", "channel_id", m.ChannelID, "error", err)
	}

	if guild, err := guildFor(s, m.GuildID); err == nil {
		inc.GuildName = guild.Name
	} else {
		slog.Warn("failed to resolve guild", "guild_id", m.GuildID, "error", err)
	}

	for _, u := range m.Mentions {
		if u.ID == c.botUserID {
			inc.MentionsBot = true
			break
		}
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil && ref.Author.ID == c.botUserID {
		inc.RepliesToBot = true
	}

	return inc
}

// ReportError posts a turn failure to the configured operational error
// channel. The user-facing notice is the orchestrator's job; this is the
// operator-facing sink.
func (c *Channel) ReportError(ctx context.Context, channelID string, err error) {
	if c.cfg.ErrorChannelID == "" {
		return
	}
	text := fmt.Sprintf("turn failed in <#%s>: %v", channelID, err)
	if len(text) > 1900 {
		text = text[:1900] + "..."
	}
	if _, sendErr := c.session.ChannelMessageSend(c.cfg.ErrorChannelID, text, discordgo.WithContext(ctx)); sendErr != nil {
		slog.Warn("failed to post to error channel", "error", sendErr)
	}
}

// replier sends into one channel, chaining each message off the previous
// one via the reply reference.
type replier struct {
	session   *discordgo.Session
	channelID string
	guildID   string
}

func (r *replier) Reply(ctx context.Context, replyToID, text string) (string, error) {
	sent, err := r.session.ChannelMessageSendReply(r.channelID, text, r.reference(replyToID), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send discord reply: %w", err)
	}
	return sent.ID, nil
}

func (r *replier) ReplyWithImage(ctx context.Context, replyToID, text, filename string, image []byte) (string, error) {
	sent, err := r.session.ChannelMessageSendComplex(r.channelID, &discordgo.MessageSend{
		Content:   text,
		Reference: r.reference(replyToID),
		Files: []*discordgo.File{{
			Name:        filename,
			ContentType: "image/png",
			Reader:      bytes.NewReader(image),
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send discord reply with attachment: %w", err)
	}
	return sent.ID, nil
}

func (r *replier) reference(messageID string) *discordgo.MessageReference {
	return &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: r.channelID,
		GuildID:   r.guildID,
	}
}

func channelFor(s *discordgo.Session, channelID string) (*discordgo.Channel, error) {
	if ch, err := s.State.Channel(channelID); err == nil {
		return ch, nil
	}
	return s.Channel(channelID)
}

func guildFor(s *discordgo.Session, guildID string) (*discordgo.Guild, error) {
	if g, err := s.State.Guild(guildID); err == nil {
		return g, nil
	}
	return s.Guild(guildID)
}

// resolveDisplayName returns the best available display name for a message
// author. Priority: server nickname > global display name > username, with
// a local fallback rather than failing the turn.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	if m.Author.Username != "" {
		return m.Author.Username
	}
	return "Unknown user"
}
