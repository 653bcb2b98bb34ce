// Package daemon wires the support runtime together and owns its
// lifecycle: provider selection, middleware, tools, stores, the HTTP
// gateway, and the optional Telegram ingress.
package daemon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/danang/arunika/internal/config"
	"github.com/danang/arunika/internal/gateway"
	"github.com/danang/arunika/internal/logger"
	"github.com/danang/arunika/internal/metrics"
	"github.com/danang/arunika/internal/telegram"
	"github.com/danang/arunika/pkg/agent"
	"github.com/danang/arunika/pkg/channels"
	"github.com/danang/arunika/pkg/escalation"
	"github.com/danang/arunika/pkg/knowledge"
	"github.com/danang/arunika/pkg/llm"
	"github.com/danang/arunika/pkg/memorystore"
	"github.com/danang/arunika/pkg/middleware"
	"github.com/danang/arunika/pkg/storefront"
	"github.com/danang/arunika/pkg/tools"
)

// Daemon represents the Arunika daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	manager        *llm.Manager
	guard          *middleware.ContentGuard
	keywordWatcher *middleware.KeywordWatcher
	pipeline       *middleware.Pipeline
	toolRegistry   *tools.Registry
	agent          *agent.Agent
	escalations    escalation.Store

	// Services
	metrics         *metrics.Metrics
	channelRegistry *channels.Registry
	gatewayServer   *gateway.Server
	telegramBot     *telegram.Bot
	scheduler       *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

var buildAgent = agent.Build

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:  cfg,
		logger:  log,
		metrics: metrics.NewMetrics(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := d.initialize(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize daemon: %w", err)
	}

	return d, nil
}

// initialize builds all modules in dependency order
func (d *Daemon) initialize() error {
	zl := d.logger.GetZerolog()

	d.manager = llm.NewManager(d.config.LLM, zl)

	if err := d.buildPipeline(zl); err != nil {
		return err
	}

	broadcaster := gateway.NewEventBroadcaster(zl)

	if err := d.buildEscalationStore(zl, broadcaster); err != nil {
		return err
	}

	if err := d.buildToolRegistry(zl); err != nil {
		return err
	}

	ag, err := buildAgent(d.ctx, agent.Config{
		Name:         d.config.Agent.Name,
		Manager:      d.manager,
		Pipeline:     d.pipeline,
		Registry:     d.toolRegistry,
		SystemPrompt: d.config.Agent.SystemPrompt,
		Temperature:  d.config.Agent.Temperature,
		MaxTokens:    d.config.Agent.MaxTokens,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to build agent: %w", err)
	}
	d.agent = ag

	if err := d.buildChannels(zl); err != nil {
		return err
	}

	var kb *knowledge.Client
	if d.config.Knowledge.BaseURL != "" {
		kb = knowledge.NewClient(d.config.Knowledge.BaseURL, zl)
	}

	gw, err := gateway.NewServer(gateway.Config{
		Port:              d.config.Gateway.Port,
		APIKey:            d.config.Gateway.APIKey,
		RequestsPerMinute: d.config.Gateway.RateLimitPerMinute,
		Agent:             d.agent,
		Channels:          d.channelRegistry,
		Escalations:       d.escalations,
		Knowledge:         kb,
		Metrics:           d.metrics,
		Broadcaster:       broadcaster,
		Logger:            zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	d.gatewayServer = gw

	if d.config.Channels.Telegram.Enabled {
		bot, err := telegram.New(d.config.Channels.Telegram.BotToken, d.agent, d.metrics, zl)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		d.telegramBot = bot
	}

	d.scheduler = cron.New()
	if _, err := d.scheduler.AddFunc("@every 5m", d.providerHealthSweep); err != nil {
		return fmt.Errorf("failed to schedule provider health sweep: %w", err)
	}

	return nil
}

func (d *Daemon) buildPipeline(zl zerolog.Logger) error {
	var stages []middleware.Stage

	if d.config.Moderation.Enabled {
		d.guard = middleware.NewContentGuard(d.config.Moderation.BannedKeywords)

		if d.config.Moderation.KeywordsFile != "" {
			watcher, err := middleware.NewKeywordWatcher(d.config.Moderation.KeywordsFile, d.guard, zl)
			if err != nil {
				return fmt.Errorf("failed to watch keywords file: %w", err)
			}
			d.keywordWatcher = watcher
		}

		stages = append(stages, d.guard)
	}

	stages = append(stages, middleware.NewPIIRedactor(), middleware.NewThinkSanitizer())
	d.pipeline = middleware.NewPipeline(zl, stages...)
	return nil
}

func (d *Daemon) buildEscalationStore(zl zerolog.Logger, broadcaster *gateway.EventBroadcaster) error {
	notifiers := []escalation.Notifier{broadcaster, metricsNotifier{d.metrics}}
	if len(d.config.Escalations.WebhookURLs) > 0 {
		notifiers = append(notifiers, escalation.NewWebhookNotifier(d.config.Escalations.WebhookURLs, zl))
	}

	switch d.config.Escalations.Backend {
	case "", "memory":
		d.escalations = escalation.NewMemoryStore(zl, notifiers...)
	case "sqlite":
		store, err := escalation.NewSQLiteStore(d.config.Escalations.SQLitePath, zl, notifiers...)
		if err != nil {
			return fmt.Errorf("failed to open escalation store: %w", err)
		}
		d.escalations = store
	default:
		return fmt.Errorf("unknown escalations backend %q", d.config.Escalations.Backend)
	}

	return nil
}

func (d *Daemon) buildToolRegistry(zl zerolog.Logger) error {
	d.toolRegistry = tools.NewRegistry(zl)

	if err := tools.RegisterEscalationTools(d.toolRegistry, d.escalations); err != nil {
		return fmt.Errorf("failed to register escalation tools: %w", err)
	}

	if d.config.Knowledge.BaseURL != "" {
		client := knowledge.NewClient(d.config.Knowledge.BaseURL, zl)
		if err := tools.RegisterKnowledgeTools(d.toolRegistry, client); err != nil {
			return fmt.Errorf("failed to register knowledge tools: %w", err)
		}
	}

	if d.config.Memory.BaseURL != "" {
		client := memorystore.NewClient(d.config.Memory.BaseURL, d.config.Memory.APIKey, zl)
		if err := tools.RegisterMemoryTools(d.toolRegistry, client); err != nil {
			return fmt.Errorf("failed to register memory tools: %w", err)
		}
	}

	if d.config.Storefront.Store != "" {
		client := storefront.NewClient(
			d.config.Storefront.Store,
			d.config.Storefront.StorefrontToken,
			d.config.Storefront.AdminToken,
			zl,
		)
		if err := tools.RegisterStorefrontTools(d.toolRegistry, client); err != nil {
			return fmt.Errorf("failed to register storefront tools: %w", err)
		}
	}

	return nil
}

func (d *Daemon) buildChannels(zl zerolog.Logger) error {
	d.channelRegistry = channels.NewRegistry()

	if d.config.Channels.Web.Enabled {
		if err := d.channelRegistry.Register(channels.NewWebAdapter()); err != nil {
			return err
		}
	}

	if d.config.Channels.Telegram.Enabled {
		adapter, err := channels.NewTelegramAdapter(d.config.Channels.Telegram.BotToken, zl)
		if err != nil {
			return fmt.Errorf("failed to create telegram channel: %w", err)
		}
		if err := d.channelRegistry.Register(adapter); err != nil {
			return err
		}
	}

	if d.config.Channels.WhatsApp.Enabled {
		adapter := channels.NewWhatsAppAdapter(
			d.config.Channels.WhatsApp.AccessToken,
			d.config.Channels.WhatsApp.PhoneNumberID,
			zl,
		)
		if err := d.channelRegistry.Register(adapter); err != nil {
			return err
		}
	}

	if len(d.channelRegistry.Names()) == 0 {
		return fmt.Errorf("no channels enabled")
	}

	return nil
}

// Start starts all daemon services
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	d.logger.Info().
		Str("provider", d.agent.Provider()).
		Strs("channels", d.channelRegistry.Names()).
		Msg("Starting daemon")

	if err := d.gatewayServer.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	if d.telegramBot != nil {
		if err := d.telegramBot.Start(d.ctx); err != nil {
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}
	}

	d.scheduler.Start()

	d.startTime = time.Now()
	d.running = true
	d.logger.Info().Msg("Daemon started")
	return nil
}

// Stop gracefully stops all daemon services
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return fmt.Errorf("daemon is not running")
	}

	d.logger.Info().Msg("Stopping daemon")

	schedCtx := d.scheduler.Stop()
	<-schedCtx.Done()

	if d.telegramBot != nil {
		if err := d.telegramBot.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Telegram bot did not stop cleanly")
		}
	}

	if err := d.gatewayServer.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Gateway did not stop cleanly")
	}

	if d.keywordWatcher != nil {
		if err := d.keywordWatcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Keyword watcher did not stop cleanly")
		}
	}

	if closer, ok := d.escalations.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Escalation store did not close cleanly")
		}
	}

	d.cancel()
	d.running = false
	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// Running reports whether the daemon has been started
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Uptime returns how long the daemon has been running
func (d *Daemon) Uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return 0
	}
	return time.Since(d.startTime)
}

// providerHealthSweep probes every configured provider and records the
// outcome. Runs on the scheduler.
func (d *Daemon) providerHealthSweep() {
	ctx, cancel := context.WithTimeout(d.ctx, time.Minute)
	defer cancel()

	results := d.manager.CheckAll(ctx)
	for provider, status := range results {
		outcome := "failed"
		if strings.HasPrefix(status, "active") {
			outcome = "ok"
		}
		d.metrics.ProviderProbesTotal.WithLabelValues(provider, outcome).Inc()
		d.logger.Info().
			Str("provider", provider).
			Str("status", status).
			Msg("Provider health sweep")
	}
}

// metricsNotifier counts escalations as they are created.
type metricsNotifier struct {
	metrics *metrics.Metrics
}

func (n metricsNotifier) EscalationCreated(e escalation.Escalation) {
	n.metrics.EscalationsCreatedTotal.
		WithLabelValues(string(e.Priority), string(e.Reason)).Inc()
}
