package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

type sentMessage struct {
	channelID string
	content   string
}

type fakeDiscord struct {
	mu      sync.Mutex
	handler func(*discordgo.Session, *discordgo.MessageCreate)
	sent    []sentMessage
	opened  bool
	closed  bool
	openErr error
}

func (d *fakeDiscord) AddHandler(h interface{}) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h.(func(*discordgo.Session, *discordgo.MessageCreate))
	return func() {}
}

func (d *fakeDiscord) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	return d.openErr
}

func (d *fakeDiscord) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDiscord) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentMessage{channelID, content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (d *fakeDiscord) messages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMessage(nil), d.sent...)
}

func discordMessage(channelID, content string) *discordgo.Message {
	return &discordgo.Message{
		ChannelID: channelID,
		Content:   content,
		Author:    &discordgo.User{ID: "u7", Username: "cook"},
	}
}

func TestDiscordGateway_Conversation(t *testing.T) {
	session := &fakeDiscord{}
	dc := &DiscordGateway{session: session, router: newTestRouter(t)}
	ctx := context.Background()

	dc.handleMessage(ctx, discordMessage("c1", "set milk to 3"))
	dc.handleMessage(ctx, discordMessage("c1", "2"))

	sent := session.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].channelID != "c1" {
		t.Errorf("channel = %q", sent[0].channelID)
	}
	if !strings.Contains(sent[0].content, "`proceed`") {
		t.Errorf("question should carry the answer hint: %q", sent[0].content)
	}
	if strings.Contains(sent[1].content, "Reply with") {
		t.Errorf("final reply should have no hint: %q", sent[1].content)
	}
}

func TestDiscordGateway_IgnoresBots(t *testing.T) {
	session := &fakeDiscord{}
	dc := &DiscordGateway{session: session, router: newTestRouter(t)}

	m := discordMessage("c1", "plan dinner")
	m.Author.Bot = true
	dc.handleMessage(context.Background(), m)
	dc.handleMessage(context.Background(), &discordgo.Message{ChannelID: "c1", Content: "hi"})

	if len(session.messages()) != 0 {
		t.Error("bot and authorless messages should be ignored")
	}
}

func TestDiscordGateway_Commands(t *testing.T) {
	session := &fakeDiscord{}
	dc := &DiscordGateway{session: session, router: newTestRouter(t)}
	ctx := context.Background()

	dc.handleMessage(ctx, discordMessage("c1", "!help"))
	dc.handleMessage(ctx, discordMessage("c1", "!cancel"))

	sent := session.messages()
	if len(sent) != 2 || sent[0].content != discordGreeting {
		t.Fatalf("sent = %+v", sent)
	}
	if sent[1].content != "Nothing to cancel." {
		t.Errorf("cancel reply = %q", sent[1].content)
	}
}

func TestDiscordGateway_StartServesUntilCancel(t *testing.T) {
	session := &fakeDiscord{}
	dc := &DiscordGateway{session: session, router: newTestRouter(t)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- dc.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		session.mu.Lock()
		ready := session.opened && session.handler != nil
		h := session.handler
		session.mu.Unlock()
		if ready {
			h(nil, &discordgo.MessageCreate{Message: discordMessage("c9", "plan dinner")})
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Start did not open the session")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if got := session.messages(); len(got) != 1 || got[0].channelID != "c9" {
		t.Errorf("sent = %+v", got)
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if !session.closed {
		t.Error("session should be closed")
	}
}

func TestDiscordGateway_StartOpenError(t *testing.T) {
	session := &fakeDiscord{openErr: errors.New("bad token")}
	dc := &DiscordGateway{session: session, router: newTestRouter(t)}

	if err := dc.Start(context.Background()); err == nil || !strings.Contains(err.Error(), "bad token") {
		t.Errorf("Start error = %v", err)
	}
}

func TestDiscordGateway_SendSplitsLongText(t *testing.T) {
	session := &fakeDiscord{}
	dc := &DiscordGateway{session: session}

	if err := dc.Send("", "hi"); err == nil {
		t.Error("empty channel id should fail")
	}

	long := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1500)
	if err := dc.Send("c1", long); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := session.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d parts, want 2", len(sent))
	}
	if sent[0].content != strings.Repeat("a", 1500) || sent[1].content != strings.Repeat("b", 1500) {
		t.Error("parts should break at the newline")
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"lines", "ab\ncd\nef", 5, []string{"ab", "cd\nef"}},
		{"long line", "abcdefg", 3, []string{"abc", "def", "g"}},
		{"multibyte", "みそしるです", 3, []string{"みそし", "るです"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.text, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("splitMessage(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}

func TestChannelSessionID(t *testing.T) {
	if got := ChannelSessionID("123"); got != "dc-123" {
		t.Errorf("ChannelSessionID = %q", got)
	}
}
