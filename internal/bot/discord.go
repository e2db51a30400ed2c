package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/bowerhall/docsage/internal/logger"
)

const discordMessageLimit = 2000

type discord struct {
	session *discordgo.Session
	handler *Handler
	guildID string
	ctx     context.Context
}

func newDiscord(token string, h *Handler, guildID string) (Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	d := &discord{
		session: session,
		handler: h,
		guildID: guildID,
		ctx:     context.Background(),
	}

	session.AddHandler(d.handleMessage)

	return d, nil
}

func (d *discord) Start(ctx context.Context) error {
	d.ctx = ctx

	if err := d.session.Open(); err != nil {
		return err
	}
	logger.Info("discord connected")

	<-ctx.Done()
	return d.session.Close()
}

func (d *discord) Send(chatID string, message string) error {
	for _, part := range splitMessage(message, discordMessageLimit) {
		if _, err := d.session.ChannelMessageSend(chatID, part); err != nil {
			logger.Error("discord send failed", "error", err, "channelID", chatID)
			return err
		}
	}
	logger.Info("discord message sent", "channelID", chatID, "chars", len(message))
	return nil
}

func (d *discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if d.guildID != "" && m.GuildID != "" && m.GuildID != d.guildID {
		return
	}

	conversationID := fmt.Sprintf("discord:%s", m.ChannelID)
	logger.Info("message received", "conversation", conversationID, "from", m.Author.Username, "text", truncate(m.Content, 50))

	if err := s.ChannelTyping(m.ChannelID); err != nil {
		logger.Debug("typing indicator failed", "error", err)
	}

	first := true
	d.handler.Handle(d.ctx, conversationID, m.Content, func(text string) error {
		for _, part := range splitMessage(text, discordMessageLimit) {
			var err error
			if first {
				_, err = s.ChannelMessageSendReply(m.ChannelID, part, m.Reference())
				first = false
			} else {
				_, err = s.ChannelMessageSend(m.ChannelID, part)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
