package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBot struct {
	mu      sync.Mutex
	updates chan tgbotapi.Update
	sent    []tgbotapi.MessageConfig
	stopped bool
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 8)}
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

func (b *fakeBot) messages() []tgbotapi.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), b.sent...)
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: 7, UserName: "cook"},
		Text: text,
	}}
}

func TestTelegramGateway_ConversationKeyboard(t *testing.T) {
	bot := newFakeBot()
	tg := &TelegramGateway{bot: bot, router: newTestRouter(t)}
	ctx := context.Background()

	tg.handleUpdate(ctx, textUpdate(42, "set milk to 3"))
	tg.handleUpdate(ctx, textUpdate(42, "2"))

	sent := bot.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].ChatID != 42 {
		t.Errorf("ChatID = %d", sent[0].ChatID)
	}
	kb, ok := sent[0].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("question markup = %T, want keyboard", sent[0].ReplyMarkup)
	}
	if len(kb.Keyboard) != 2 || len(kb.Keyboard[0]) != 2 || kb.Keyboard[1][0].Text != "proceed" {
		t.Errorf("keyboard = %+v", kb.Keyboard)
	}
	if _, ok := sent[1].ReplyMarkup.(tgbotapi.ReplyKeyboardRemove); !ok {
		t.Errorf("final markup = %T, want keyboard removal", sent[1].ReplyMarkup)
	}
}

func TestTelegramGateway_IgnoresNonMessages(t *testing.T) {
	bot := newFakeBot()
	tg := &TelegramGateway{bot: bot, router: newTestRouter(t)}

	tg.handleUpdate(context.Background(), tgbotapi.Update{UpdateID: 1})
	if len(bot.messages()) != 0 {
		t.Error("updates without a message should be ignored")
	}
}

func TestTelegramGateway_StartStopsWithContext(t *testing.T) {
	bot := newFakeBot()
	tg := &TelegramGateway{bot: bot, router: newTestRouter(t)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- tg.Start(ctx) }()

	bot.updates <- textUpdate(1, "plan dinner")
	deadline := time.Now().Add(2 * time.Second)
	for len(bot.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if len(bot.messages()) != 1 {
		t.Errorf("sent %d messages, want 1", len(bot.messages()))
	}
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if !bot.stopped {
		t.Error("polling should be stopped")
	}
}

func TestTelegramGateway_SendValidatesChatID(t *testing.T) {
	bot := newFakeBot()
	tg := &TelegramGateway{bot: bot}

	if err := tg.Send("abc", "hi"); err == nil {
		t.Error("non-numeric chat id should fail")
	}
	if err := tg.Send("99", "hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := bot.messages(); len(got) != 1 || got[0].ChatID != 99 {
		t.Errorf("sent = %+v", got)
	}
}

func TestChatSessionID(t *testing.T) {
	if got := ChatSessionID(-100123); got != "tg--100123" {
		t.Errorf("ChatSessionID = %q", got)
	}
}
