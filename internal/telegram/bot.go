// Package telegram runs the long-polling ingress for deployments that
// cannot expose a public webhook URL.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/danang/arunika/internal/metrics"
	"github.com/danang/arunika/pkg/agent"
	"github.com/danang/arunika/pkg/orchestrator"
)

const (
	startReply = "Hi! I'm your customer support assistant. Ask me about orders, products, or policies and I'll do my best to help."
	helpReply  = "Send me a message describing what you need. I can look up orders, search products, answer policy questions, and hand you off to a human agent when needed."
)

// Bot polls Telegram for updates and runs each text message through the
// support agent.
type Bot struct {
	api     *tgbotapi.BotAPI
	agent   *agent.Agent
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics
	logger  zerolog.Logger

	running bool
	updates tgbotapi.UpdatesChannel
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// New creates a new Telegram bot instance
func New(token string, ag *agent.Agent, m *metrics.Metrics, logger zerolog.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if ag == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if m == nil {
		m = metrics.NewMetrics()
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := &Bot{
		api:     api,
		agent:   ag,
		orch:    orchestrator.New(logger),
		metrics: m,
		logger:  logger.With().Str("component", "telegram").Logger(),
	}

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// Start begins processing updates
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	b.updates = b.api.GetUpdatesChan(u)
	b.running = true

	b.wg.Add(1)
	go b.processUpdates(ctx)

	return nil
}

// Stop stops the bot and waits for in-flight turns
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	b.running = false
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping Telegram bot")
	b.api.StopReceivingUpdates()
	b.wg.Wait()

	b.logger.Info().Msg("Telegram bot stopped")
	return nil
}

func (b *Bot) processUpdates(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-b.updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	msg := update.Message
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	inbound := orchestrator.Inbound{
		UserID:  strconv.FormatInt(msg.From.ID, 10),
		Channel: "telegram",
		Text:    text,
		Metadata: map[string]interface{}{
			"chat_id":    msg.Chat.ID,
			"message_id": msg.MessageID,
			"username":   msg.From.UserName,
		},
	}

	turnCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	outbound := b.orch.Run(turnCtx, b.agent, inbound, orchestrator.Session{})

	status := "ok"
	if _, failed := outbound.Metadata["error"]; failed {
		status = "error"
		b.metrics.TurnErrorsTotal.WithLabelValues("telegram").Inc()
	}
	b.metrics.TurnsTotal.WithLabelValues("telegram", status).Inc()
	b.metrics.TurnDuration.WithLabelValues("telegram").Observe(time.Since(start).Seconds())

	b.reply(msg.Chat.ID, outbound.Text)
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, startReply)
	case "help":
		b.reply(msg.Chat.ID, helpReply)
	default:
		b.reply(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
		return
	}
	b.metrics.ChannelDeliveriesTotal.WithLabelValues("telegram").Inc()
}
