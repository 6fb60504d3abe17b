package channel

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hamyarlab/yadavar/internal/bus"
	"github.com/hamyarlab/yadavar/internal/config"
)

const telegramChannelName = "telegram"

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetSelf() tgbotapi.User
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot interface
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return w.bot.Request(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

func (w *tgBotWrapper) GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error) {
	return w.bot.GetFile(config)
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// maxVoiceDuration caps how long a voice message may be before we refuse
// to transcribe it.
const maxVoiceDuration = 60 * time.Second

type TelegramChannel struct {
	BaseChannel
	token      string
	bot        TelegramBot
	proxy      string
	httpClient *http.Client
	cancel     context.CancelFunc
	botFactory BotFactory
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	ch := &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b, cfg.AllowFrom),
		token:       cfg.Token,
		proxy:       cfg.Proxy,
		httpClient:  http.DefaultClient,
		botFactory:  factory,
	}
	return ch, nil
}

func (t *TelegramChannel) initBot() error {
	var client *http.Client
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	} else {
		client = http.DefaultClient
	}
	t.httpClient = client

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				switch {
				case update.CallbackQuery != nil:
					t.handleCallback(update.CallbackQuery)
				case update.Message != nil:
					t.handleMessage(update.Message)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("[telegram] polling started")
	return nil
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	senderID := strconv.FormatInt(msg.From.ID, 10)

	if !t.IsAllowed(senderID) {
		log.Printf("[telegram] rejected message from %s (%s)", senderID, msg.From.UserName)
		return
	}

	inbound := bus.InboundMessage{
		Channel:   telegramChannelName,
		SenderID:  senderID,
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		Timestamp: time.Unix(int64(msg.Date), 0),
		Metadata: map[string]any{
			"username":   msg.From.UserName,
			"first_name": msg.From.FirstName,
			"lang":       msg.From.LanguageCode,
			"message_id": msg.MessageID,
		},
	}

	switch {
	case msg.Voice != nil:
		if time.Duration(msg.Voice.Duration)*time.Second > maxVoiceDuration {
			log.Printf("[telegram] voice from %s too long (%ds)", senderID, msg.Voice.Duration)
			return
		}
		data, err := t.downloadFileData(msg.Voice.FileID)
		if err != nil {
			log.Printf("[telegram] download voice %s failed: %v", msg.Voice.FileID, err)
			return
		}
		inbound.Kind = bus.TurnVoice
		inbound.Voice = data
		inbound.VoiceName = voiceFileName(msg.Voice.FileID, msg.Voice.MimeType)
	case msg.IsCommand():
		inbound.Kind = bus.TurnCommand
		inbound.Content = msg.Text
	case msg.Text != "":
		inbound.Kind = bus.TurnText
		inbound.Content = msg.Text
	default:
		return
	}

	t.bus.Inbound <- inbound
}

// handleCallback turns an inline-button tap into a TurnButton inbound
// event and acks the query so the client stops its spinner.
func (t *TelegramChannel) handleCallback(cb *tgbotapi.CallbackQuery) {
	senderID := strconv.FormatInt(cb.From.ID, 10)
	if !t.IsAllowed(senderID) {
		log.Printf("[telegram] rejected callback from %s", senderID)
		return
	}
	if cb.Message == nil || cb.Data == "" {
		return
	}

	if _, err := t.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("[telegram] ack callback %s: %v", cb.ID, err)
	}

	t.bus.Inbound <- bus.InboundMessage{
		Channel:   telegramChannelName,
		SenderID:  senderID,
		ChatID:    strconv.FormatInt(cb.Message.Chat.ID, 10),
		Kind:      bus.TurnButton,
		Content:   cb.Data,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"username":   cb.From.UserName,
			"first_name": cb.From.FirstName,
			"lang":       cb.From.LanguageCode,
			"message_id": cb.Message.MessageID,
		},
	}
}

func voiceFileName(fileID, mimeType string) string {
	ext := ".ogg"
	if mimeType != "" {
		if i := strings.LastIndex(mimeType, "/"); i >= 0 && i < len(mimeType)-1 {
			ext = "." + mimeType[i+1:]
		}
	}
	return path.Base(fileID) + ext
}

func (t *TelegramChannel) downloadFileData(fileID string) ([]byte, error) {
	if t.bot == nil {
		return nil, fmt.Errorf("telegram bot not initialized")
	}

	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get telegram file: %w", err)
	}

	client := t.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Get(file.Link(t.token))
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download telegram file: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read telegram file body: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("telegram file is empty")
	}

	return data, nil
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	log.Printf("[telegram] stopped")
	return nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}

func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	keyboard := toInlineKeyboard(msg.Buttons)
	content := msg.Content

	replyTo := 0
	if msg.ReplyTo != "" {
		replyTo, err = strconv.Atoi(msg.ReplyTo)
		if err != nil {
			return fmt.Errorf("invalid reply-to id %q: %w", msg.ReplyTo, err)
		}
	}

	// Telegram has a 4096 char limit per message
	const maxLen = 4000
	first := true
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			// Try to split at last newline before maxLen
			idx := strings.LastIndex(chunk[:maxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]

		tgMsg := tgbotapi.NewMessage(chatID, chunk)
		if first && replyTo != 0 {
			tgMsg.ReplyToMessageID = replyTo
		}
		first = false
		if content == "" && keyboard != nil {
			// keyboard rides on the last chunk
			tgMsg.ReplyMarkup = *keyboard
		}
		if _, err := t.bot.Send(tgMsg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func toInlineKeyboard(rows [][]bus.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		kb = append(kb, btns)
	}
	if len(kb) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(kb...)
	return &markup
}
