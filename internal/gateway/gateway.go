// Package gateway assembles the bot: config, store, extractor, transcriber,
// dialogue orchestrator, channels, and the dispatch scheduler, wired
// together over the message bus.
package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hamyarlab/yadavar/internal/bus"
	"github.com/hamyarlab/yadavar/internal/channel"
	"github.com/hamyarlab/yadavar/internal/config"
	"github.com/hamyarlab/yadavar/internal/dialogue"
	"github.com/hamyarlab/yadavar/internal/dispatch"
	"github.com/hamyarlab/yadavar/internal/nlu"
	"github.com/hamyarlab/yadavar/internal/payment"
	"github.com/hamyarlab/yadavar/internal/stt"
	"github.com/hamyarlab/yadavar/internal/store"
)

// Options for creating a Gateway
type Options struct {
	Extractor   nlu.Extractor   // overrides the OpenAI extractor (for testing)
	Transcriber stt.Transcriber // overrides Whisper (for testing)
	SignalChan  chan os.Signal  // for testing signal handling
}

type Gateway struct {
	cfg          *config.Config
	bus          *bus.MessageBus
	store        *store.Store
	orchestrator *dialogue.Orchestrator
	transcriber  stt.Transcriber
	channels     *channel.ChannelManager
	scheduler    *dispatch.Scheduler
	signalChan   chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	dbPath := strings.TrimSpace(cfg.Store.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "reminders.db")
	}
	st, err := store.Open(dbPath, cfg.Limits.FreeMaxReminders)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	loc, err := time.LoadLocation(cfg.Dialogue.Timezone)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Dialogue.Timezone, err)
	}

	sessionTTL, err := time.ParseDuration(cfg.Dialogue.SessionTTL)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("parse session ttl: %w", err)
	}
	confirmTTL, err := time.ParseDuration(cfg.Dialogue.ConfirmTTL)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("parse confirm ttl: %w", err)
	}

	extractor := opts.Extractor
	if extractor == nil {
		extractor = nlu.NewOpenAIExtractor(cfg.Provider)
	}
	g.transcriber = opts.Transcriber
	if g.transcriber == nil {
		g.transcriber = stt.NewWhisperTranscriber(cfg.Provider)
	}

	var pay dialogue.Payments
	if cfg.Payment.Enabled && cfg.Payment.Merchant != "" {
		client := payment.NewClient(cfg.Payment.Merchant, cfg.Payment.CallbackURL)
		if cfg.Payment.BaseURL != "" {
			client.SetBaseURL(cfg.Payment.BaseURL)
		}
		pay = client
	}

	priceIRR := cfg.Payment.PriceIRR
	if priceIRR <= 0 {
		priceIRR = config.DefaultPremiumPriceIRR
	}

	g.orchestrator = dialogue.NewOrchestrator(
		st,
		extractor,
		dialogue.NewSessionStore(sessionTTL),
		dialogue.NewConfirmStore(confirmTTL),
		pay,
		loc,
		priceIRR,
	)

	chMgr, err := channel.NewChannelManager(cfg.Channels, g.bus)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	tick, err := time.ParseDuration(cfg.Dispatch.TickInterval)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("parse tick interval: %w", err)
	}
	g.scheduler = dispatch.NewScheduler(st, chMgr, "telegram", tick, cfg.Dispatch.BatchSize, loc)
	g.scheduler.Maintenance = g.orchestrator.Sweep

	g.signalChan = opts.SignalChan
	return g, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running")

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// processLoop drains the inbound bus. Each message runs on its own
// goroutine; turns for one owner are still serialized inside the
// orchestrator, so slow owners don't block everyone else.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			go g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	log.Printf("[gateway] inbound %s from %s/%s: %s", msg.Kind, msg.Channel, msg.SenderID, truncate(msg.Content, 80))

	if msg.Kind == bus.TurnVoice {
		text, err := g.transcriber.Transcribe(ctx, msg.Voice, msg.VoiceName)
		if err != nil {
			log.Printf("[gateway] transcribe from %s: %v", msg.SenderID, err)
		}
		msg.Content = text
	}

	telegramID, err := strconv.ParseInt(msg.SenderID, 10, 64)
	if err != nil {
		log.Printf("[gateway] non-numeric sender id %q", msg.SenderID)
		return
	}

	reply := g.orchestrator.HandleTurn(ctx, dialogue.Turn{
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		TelegramID: telegramID,
		Kind:       msg.Kind,
		Content:    msg.Content,
		FirstName:  metaString(msg.Metadata, "first_name"),
		Username:   metaString(msg.Metadata, "username"),
		Lang:       metaString(msg.Metadata, "lang"),
	})
	if reply.Text == "" {
		return
	}

	out := bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply.Text,
		Buttons: reply.Buttons,
	}
	if msg.Kind == bus.TurnVoice {
		// quote the voice note so the user sees which message was heard
		if id, ok := msg.Metadata["message_id"].(int); ok {
			out.ReplyTo = strconv.Itoa(id)
		}
	}
	g.bus.Outbound <- out
}

func (g *Gateway) Shutdown() error {
	if g.scheduler != nil {
		g.scheduler.Stop()
	}
	_ = g.channels.StopAll()
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			log.Printf("[gateway] close store warning: %v", err)
		}
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
