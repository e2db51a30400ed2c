package bot

import "fmt"

func New(cfg Config, h *Handler) (Bot, error) {
	switch cfg.Provider {
	case "telegram":
		return NewTelegram(cfg.Token, h, cfg.AllowedChats)
	case "discord":
		return NewDiscord(cfg.Token, h, cfg.GuildID)
	default:
		return nil, fmt.Errorf("unknown bot provider: %s", cfg.Provider)
	}
}

func NewTelegram(token string, h *Handler, allowedChats []int64) (Bot, error) {
	return newTelegram(token, h, allowedChats)
}

func NewDiscord(token string, h *Handler, guildID string) (Bot, error) {
	return newDiscord(token, h, guildID)
}
