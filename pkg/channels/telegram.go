package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/danang/arunika/pkg/orchestrator"
)

// TelegramSender is the part of the bot API the adapter needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAdapter handles Telegram webhook payloads and delivers replies
// through the bot API.
type TelegramAdapter struct {
	bot    TelegramSender
	logger zerolog.Logger
}

// NewTelegramAdapter creates the adapter from a bot token. The bot may be
// nil when the token is unset; Deliver then degrades to a logged no-op.
func NewTelegramAdapter(token string, logger zerolog.Logger) (*TelegramAdapter, error) {
	if token == "" {
		return &TelegramAdapter{logger: logger}, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &TelegramAdapter{bot: api, logger: logger}, nil
}

// NewTelegramAdapterWithSender wires a custom sender (used by tests).
func NewTelegramAdapterWithSender(sender TelegramSender, logger zerolog.Logger) *TelegramAdapter {
	return &TelegramAdapter{bot: sender, logger: logger}
}

func (t *TelegramAdapter) Name() string { return "telegram" }

// Parse normalizes a Telegram update payload.
func (t *TelegramAdapter) Parse(raw []byte) (orchestrator.Inbound, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return orchestrator.Inbound{}, fmt.Errorf("invalid telegram update: %w", err)
	}
	if update.Message == nil || update.Message.From == nil {
		return orchestrator.Inbound{}, fmt.Errorf("update carries no message")
	}
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return orchestrator.Inbound{}, fmt.Errorf("message has no text")
	}

	return orchestrator.Inbound{
		UserID:  strconv.FormatInt(update.Message.From.ID, 10),
		Channel: t.Name(),
		Text:    text,
		Metadata: map[string]interface{}{
			"chat_id":    update.Message.Chat.ID,
			"message_id": update.Message.MessageID,
			"username":   update.Message.From.UserName,
		},
	}, nil
}

// Present returns the acknowledgement body for the webhook response. The
// actual reply goes out via Deliver.
func (t *TelegramAdapter) Present(out orchestrator.Outbound) interface{} {
	return map[string]interface{}{"status": "ok"}
}

// Deliver sends the reply to the originating chat. Failures are logged,
// never returned.
func (t *TelegramAdapter) Deliver(ctx context.Context, in orchestrator.Inbound, out orchestrator.Outbound) {
	if t.bot == nil {
		t.logger.Warn().Msg("Telegram bot not configured, dropping reply")
		return
	}

	chatID, ok := chatIDFromMetadata(in.Metadata)
	if !ok {
		t.logger.Error().Str("user_id", in.UserID).Msg("No chat_id in telegram metadata, dropping reply")
		return
	}

	msg := tgbotapi.NewMessage(chatID, out.Text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to deliver telegram reply")
	}
}

func chatIDFromMetadata(metadata map[string]interface{}) (int64, bool) {
	switch v := metadata["chat_id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}
