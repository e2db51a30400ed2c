package bot

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bowerhall/docsage/internal/logger"
)

const telegramMessageLimit = 4096

type telegram struct {
	api          *tgbotapi.BotAPI
	handler      *Handler
	allowedChats []int64
}

func newTelegram(token string, h *Handler, allowedChats []int64) (Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Info("telegram connected", "bot", api.Self.UserName)
	return &telegram{api: api, handler: h, allowedChats: allowedChats}, nil
}

func (t *telegram) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			go t.handleMessage(ctx, update.Message)
		}
	}
}

func (t *telegram) allowed(chatID int64) bool {
	return len(t.allowedChats) == 0 || slices.Contains(t.allowedChats, chatID)
}

func (t *telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !t.allowed(msg.Chat.ID) {
		logger.Debug("message from unlisted chat ignored", "chat", msg.Chat.ID)
		return
	}

	conversationID := fmt.Sprintf("telegram:%d", msg.Chat.ID)
	from := ""
	if msg.From != nil {
		from = msg.From.UserName
	}
	logger.Info("message received", "conversation", conversationID, "from", from, "text", truncate(msg.Text, 50))

	if _, err := t.api.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		logger.Debug("typing indicator failed", "error", err)
	}

	first := true
	t.handler.Handle(ctx, conversationID, msg.Text, func(text string) error {
		for _, part := range splitMessage(text, telegramMessageLimit) {
			reply := tgbotapi.NewMessage(msg.Chat.ID, part)
			if first {
				reply.ReplyToMessageID = msg.MessageID
				first = false
			}
			if _, err := t.api.Send(reply); err != nil {
				return err
			}
		}
		return nil
	})
}

// Send delivers a proactive message, such as an operator alert.
func (t *telegram) Send(chatID string, message string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", chatID, err)
	}

	for _, part := range splitMessage(message, telegramMessageLimit) {
		if _, err := t.api.Send(tgbotapi.NewMessage(id, part)); err != nil {
			logger.Error("proactive send failed", "error", err, "chatID", chatID)
			return err
		}
	}
	logger.Info("proactive message sent", "chatID", chatID, "chars", len(message))
	return nil
}
