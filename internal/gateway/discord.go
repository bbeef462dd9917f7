package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/orchestrator"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// discordMessageLimit is the maximum message length Discord accepts.
const discordMessageLimit = 2000

const discordGreeting = "Hi! I'm Morizo. Tell me what's in your fridge or ask me to plan a menu. Type !cancel to drop a question."

// discordSession is the part of *discordgo.Session the gateway uses.
type discordSession interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordGateway serves the router over a Discord bot connection. Each
// channel is one session.
type DiscordGateway struct {
	session discordSession
	router  *Router
}

// NewDiscordGateway creates a bot session for token. The connection opens in Start.
func NewDiscordGateway(token string, router *Router) (*DiscordGateway, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return &DiscordGateway{session: dg, router: router}, nil
}

// Start opens the gateway connection and serves messages until ctx is done.
func (dc *DiscordGateway) Start(ctx context.Context) error {
	remove := dc.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		dc.handleMessage(ctx, m.Message)
	})
	defer remove()

	if err := dc.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	log.Printf("[discord] connected")

	<-ctx.Done()
	if err := dc.session.Close(); err != nil {
		log.Printf("[discord] close: %v", err)
	}
	return ctx.Err()
}

func (dc *DiscordGateway) handleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}

	text := strings.TrimSpace(m.Content)
	switch text {
	case "!start", "!help":
		dc.send(m.ChannelID, discordGreeting)
		return
	case "!cancel":
		text = "/cancel"
	}

	turn := Turn{SessionID: ChannelSessionID(m.ChannelID), UserID: "dc-" + m.Author.ID, Text: text}
	resp, reply := dc.router.Reply(ctx, turn)
	if hint := discordHint(resp); hint != "" {
		reply += "\n" + hint
	}
	dc.send(m.ChannelID, reply)
}

func (dc *DiscordGateway) send(channelID, text string) {
	if err := dc.Send(channelID, text); err != nil {
		log.Printf("[discord] send failed: %v", err)
	}
}

// Send delivers text to a channel, split into messages Discord accepts.
func (dc *DiscordGateway) Send(chatID string, text string) error {
	if chatID == "" {
		return errors.New("invalid channel ID: empty")
	}
	for _, part := range splitMessage(text, discordMessageLimit) {
		if _, err := dc.session.ChannelMessageSend(chatID, part); err != nil {
			return err
		}
	}
	return nil
}

// Stop closes the connection.
func (dc *DiscordGateway) Stop() error {
	return dc.session.Close()
}

// ChannelSessionID maps a Discord channel to a session id.
func ChannelSessionID(channelID string) string {
	return "dc-" + channelID
}

// discordHint lists the accepted answers, since Discord has no reply keyboard.
func discordHint(resp *orchestrator.Response) string {
	if resp == nil {
		return ""
	}
	switch resp.Kind {
	case orchestrator.ResponseNeedsConfirmation:
		return "_Reply with a number, `proceed` or `!cancel`._"
	case orchestrator.ResponseStagePrompt:
		if resp.Stage == models.StageMain {
			return "_Reply with a number or `more`._"
		}
		return "_Reply with a number, `more` or `back`._"
	default:
		return ""
	}
}

// splitMessage cuts text into parts of at most limit runes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return parts
}

var _ Messenger = (*DiscordGateway)(nil)
