package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/orchestrator"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

const telegramGreeting = "Hi! I'm Morizo. Tell me what's in your fridge or ask me to plan a menu."

// telegramBot is the part of *tgbotapi.BotAPI the gateway uses.
type telegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
}

// TelegramGateway serves the router over the Telegram Bot API. Each chat is
// one session.
type TelegramGateway struct {
	bot    telegramBot
	router *Router
}

// NewTelegramGateway authorizes the bot token.
func NewTelegramGateway(token string, router *Router) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorize telegram bot: %w", err)
	}

	log.Printf("[telegram] authorized on account %s", bot.Self.UserName)
	return &TelegramGateway{bot: bot, router: router}, nil
}

// Start polls for updates until ctx is done or Stop is called.
func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			tg.bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			tg.handleUpdate(ctx, update)
		}
	}
}

func (tg *TelegramGateway) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	m := update.Message
	if m == nil {
		return
	}

	var userID string
	if m.From != nil {
		userID = "tg-" + strconv.FormatInt(m.From.ID, 10)
		log.Printf("[telegram] %s: %s", m.From.UserName, m.Text)
	}

	if m.IsCommand() && m.Command() == "start" {
		tg.send(tgbotapi.NewMessage(m.Chat.ID, telegramGreeting))
		return
	}

	turn := Turn{SessionID: ChatSessionID(m.Chat.ID), UserID: userID, Text: m.Text}
	resp, text := tg.router.Reply(ctx, turn)

	msg := tgbotapi.NewMessage(m.Chat.ID, text)
	msg.ReplyMarkup = replyKeyboard(resp)
	tg.send(msg)
}

func (tg *TelegramGateway) send(c tgbotapi.Chattable) {
	if _, err := tg.bot.Send(c); err != nil {
		log.Printf("[telegram] send failed: %v", err)
	}
}

// Send delivers text to a chat id.
func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	_, err = tg.bot.Send(tgbotapi.NewMessage(id, text))
	return err
}

// Stop ends polling.
func (tg *TelegramGateway) Stop() error {
	tg.bot.StopReceivingUpdates()
	return nil
}

// ChatSessionID maps a Telegram chat to a session id.
func ChatSessionID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

// replyKeyboard offers numbered buttons for questions and stage prompts and
// removes the keyboard otherwise.
func replyKeyboard(resp *orchestrator.Response) any {
	if resp == nil {
		return tgbotapi.NewRemoveKeyboard(false)
	}

	var n int
	var extra []string
	switch resp.Kind {
	case orchestrator.ResponseNeedsConfirmation:
		if resp.Confirmation != nil {
			n = len(resp.Confirmation.Options)
		}
		extra = []string{"proceed", "cancel"}
	case orchestrator.ResponseStagePrompt:
		n = len(resp.Candidates)
		extra = []string{"more"}
		if resp.Stage != models.StageMain {
			extra = append(extra, "back")
		}
	default:
		return tgbotapi.NewRemoveKeyboard(false)
	}

	var numbers []tgbotapi.KeyboardButton
	for i := 1; i <= n; i++ {
		numbers = append(numbers, tgbotapi.NewKeyboardButton(strconv.Itoa(i)))
	}
	var words []tgbotapi.KeyboardButton
	for _, w := range extra {
		words = append(words, tgbotapi.NewKeyboardButton(w))
	}

	var rows [][]tgbotapi.KeyboardButton
	if len(numbers) > 0 {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(numbers...))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(words...))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.OneTimeKeyboard = true
	return kb
}

var _ Messenger = (*TelegramGateway)(nil)
