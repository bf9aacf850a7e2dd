package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"alfred/internal/session"
)

const (
	telegramMaxMsgLen  = 4000
	telegramPollPeriod = 30 // long-poll timeout, seconds
)

// Telegram runs the assistant behind a Telegram bot with long polling.
// Confirmation works with the same /confirm and /cancel messages as the
// other transports.
type Telegram struct {
	token     string
	allowFrom []int64 // empty = allow all
	sessions  *session.Manager
	logger    *slog.Logger
	bot       *tgbotapi.BotAPI
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string
	Sessions  *session.Manager
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		sessions:  cfg.Sessions,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollPeriod
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message

	if !t.allowed(msg.From.ID) {
		t.logger.Warn("message from unauthorized user dropped",
			"user", msg.From.ID, "chat", msg.Chat.ID)
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	a := t.sessions.Get(session.Key("telegram", chatID))

	if strings.TrimSpace(msg.Text) == "/reset" {
		t.sessions.Clear(session.Key("telegram", chatID))
		t.send(msg.Chat.ID, "Conversation reset.")
		return
	}

	typing := tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)
	t.bot.Send(typing)

	replyCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	reply, err := a.ProcessText(replyCtx, msg.Text)
	if err != nil {
		t.logger.Error("telegram message processing failed", "chat", chatID, "err", err)
		t.send(msg.Chat.ID, "I am afraid the assistant backend is unavailable right now.")
		return
	}
	t.send(msg.Chat.ID, reply)
}

func (t *Telegram) allowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// send delivers content, splitting messages that exceed Telegram's length
// limit.
func (t *Telegram) send(chatID int64, content string) {
	if content == "" {
		return
	}
	for len(content) > 0 {
		part := content
		if len(part) > telegramMaxMsgLen {
			cut := strings.LastIndex(part[:telegramMaxMsgLen], "\n")
			if cut < telegramMaxMsgLen/2 {
				cut = telegramMaxMsgLen
			}
			part = content[:cut]
		}
		content = strings.TrimPrefix(content[len(part):], "\n")

		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Error("telegram send failed", "chat", chatID, "err", err)
			return
		}
		if len(content) > 0 {
			time.Sleep(200 * time.Millisecond)
		}
	}
}
