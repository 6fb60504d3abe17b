package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hamyarlab/yadavar/internal/bus"
	"github.com/hamyarlab/yadavar/internal/config"
)

func TestBaseChannel_Name(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := NewBaseChannel("test", b, nil)
	if ch.Name() != "test" {
		t.Errorf("Name = %q, want test", ch.Name())
	}
}

func TestBaseChannel_IsAllowed_NoFilter(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := NewBaseChannel("test", b, nil)
	if !ch.IsAllowed("anyone") {
		t.Error("should allow anyone when allowFrom is empty")
	}
}

func TestBaseChannel_IsAllowed_WithFilter(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := NewBaseChannel("test", b, []string{"user1", "user2"})

	if !ch.IsAllowed("user1") {
		t.Error("should allow user1")
	}
	if ch.IsAllowed("user3") {
		t.Error("should reject user3")
	}
}

func TestNewTelegramChannel_NoToken(t *testing.T) {
	b := bus.NewMessageBus(10)
	_, err := NewTelegramChannel(config.TelegramConfig{}, b)
	if err == nil {
		t.Error("expected error for empty token")
	}
}

func TestChannelManager_NoChannelEnabled(t *testing.T) {
	b := bus.NewMessageBus(10)
	if _, err := NewChannelManager(config.ChannelsConfig{}, b); err == nil {
		t.Error("expected error when no channel is enabled")
	}
}

// mockChannel implements Channel for manager tests
type mockChannel struct {
	name     string
	started  bool
	stopped  bool
	startErr error
	stopErr  error
	sent     []bus.OutboundMessage
	sendErr  error
}

func (m *mockChannel) Name() string { return m.name }
func (m *mockChannel) Start(ctx context.Context) error {
	m.started = true
	return m.startErr
}
func (m *mockChannel) Stop() error {
	m.stopped = true
	return m.stopErr
}
func (m *mockChannel) Send(msg bus.OutboundMessage) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestChannelManager_WithMockChannel(t *testing.T) {
	b := bus.NewMessageBus(10)
	mock := &mockChannel{name: "mock"}

	m := &ChannelManager{
		channels: map[string]Channel{"mock": mock},
		bus:      b,
	}

	if err := m.StartAll(context.Background()); err != nil {
		t.Errorf("StartAll error: %v", err)
	}
	if !mock.started {
		t.Error("mock channel should be started")
	}

	channels := m.EnabledChannels()
	if len(channels) != 1 || channels[0] != "mock" {
		t.Errorf("EnabledChannels = %v, want [mock]", channels)
	}

	if err := m.StopAll(); err != nil {
		t.Errorf("StopAll error: %v", err)
	}
	if !mock.stopped {
		t.Error("mock channel should be stopped")
	}
}

func TestChannelManager_StartAll_Error(t *testing.T) {
	b := bus.NewMessageBus(10)
	mock := &mockChannel{name: "mock", startErr: fmt.Errorf("start failed")}

	m := &ChannelManager{
		channels: map[string]Channel{"mock": mock},
		bus:      b,
	}
	if err := m.StartAll(context.Background()); err == nil {
		t.Error("expected error from StartAll")
	}
}

func TestChannelManager_Send(t *testing.T) {
	b := bus.NewMessageBus(10)
	mock := &mockChannel{name: "mock"}
	m := &ChannelManager{
		channels: map[string]Channel{"mock": mock},
		bus:      b,
	}

	msg := bus.OutboundMessage{Channel: "mock", ChatID: "1", Content: "hi"}
	if err := m.Send(msg); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(mock.sent) != 1 {
		t.Fatalf("sent %d, want 1", len(mock.sent))
	}

	if err := m.Send(bus.OutboundMessage{Channel: "other"}); err == nil {
		t.Error("expected error for unknown channel")
	}
}

func TestChannelManager_Send_TransportError(t *testing.T) {
	b := bus.NewMessageBus(10)
	mock := &mockChannel{name: "mock", sendErr: fmt.Errorf("transport down")}
	m := &ChannelManager{
		channels: map[string]Channel{"mock": mock},
		bus:      b,
	}
	if err := m.Send(bus.OutboundMessage{Channel: "mock"}); err == nil {
		t.Error("transport error must surface to the caller")
	}
}

// mockTelegramBot implements TelegramBot interface for testing
type mockTelegramBot struct {
	updatesChan chan tgbotapi.Update
	stopped     bool
	sentMsgs    []tgbotapi.Chattable
	requests    []tgbotapi.Chattable
	sendErr     error
	getFileErr  error
	files       map[string]tgbotapi.File
	self        tgbotapi.User
}

func newMockBot() *mockTelegramBot {
	return &mockTelegramBot{
		updatesChan: make(chan tgbotapi.Update, 10),
		files:       make(map[string]tgbotapi.File),
		self:        tgbotapi.User{UserName: "testbot"},
	}
}

func (m *mockTelegramBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockTelegramBot) StopReceivingUpdates() {
	m.stopped = true
}

func (m *mockTelegramBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sentMsgs = append(m.sentMsgs, c)
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	return tgbotapi.Message{MessageID: 1}, nil
}

func (m *mockTelegramBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockTelegramBot) GetSelf() tgbotapi.User {
	return m.self
}

func (m *mockTelegramBot) GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error) {
	if m.getFileErr != nil {
		return tgbotapi.File{}, m.getFileErr
	}
	file, ok := m.files[config.FileID]
	if !ok {
		return tgbotapi.File{}, fmt.Errorf("file %q not found", config.FileID)
	}
	return file, nil
}

func TestTelegramChannel_InitBot_Success(t *testing.T) {
	b := bus.NewMessageBus(10)
	mockBot := newMockBot()
	factory := func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
		return mockBot, nil
	}

	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "fake-token"}, b, factory)
	if err := ch.initBot(); err != nil {
		t.Errorf("initBot error: %v", err)
	}
	if ch.bot == nil {
		t.Error("bot should be set")
	}
}

func TestTelegramChannel_InitBot_InvalidProxy(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{
		Token: "fake-token",
		Proxy: "://invalid-url",
	}, b, defaultBotFactory)

	if err := ch.initBot(); err == nil {
		t.Error("expected error for invalid proxy URL")
	}
}

func TestTelegramChannel_Send_NilBot(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)
	if err := ch.Send(bus.OutboundMessage{ChatID: "1", Content: "x"}); err == nil {
		t.Error("expected error with nil bot")
	}
}

func TestTelegramChannel_Send_InvalidChatID(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)
	ch.SetBot(newMockBot())

	if err := ch.Send(bus.OutboundMessage{ChatID: "not-a-number", Content: "test"}); err == nil {
		t.Error("expected error for invalid chat ID")
	}
}

func TestTelegramChannel_Send_WithButtons(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)
	mockBot := newMockBot()
	ch.SetBot(mockBot)

	err := ch.Send(bus.OutboundMessage{
		ChatID:  "456",
		Content: "تایید می‌کنید؟",
		Buttons: [][]bus.Button{{
			{Label: "✅ تایید", Action: "accept:tok"},
			{Label: "❌ لغو", Action: "reject:tok"},
		}},
	})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(mockBot.sentMsgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(mockBot.sentMsgs))
	}

	msg, ok := mockBot.sentMsgs[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", mockBot.sentMsgs[0])
	}
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("reply markup %T, want InlineKeyboardMarkup", msg.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("keyboard shape %+v", markup.InlineKeyboard)
	}
	if *markup.InlineKeyboard[0][0].CallbackData != "accept:tok" {
		t.Errorf("callback data = %q", *markup.InlineKeyboard[0][0].CallbackData)
	}
}

func TestTelegramChannel_Send_ReplyTo(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)
	mockBot := newMockBot()
	ch.SetBot(mockBot)

	err := ch.Send(bus.OutboundMessage{ChatID: "456", Content: "شنیدم", ReplyTo: "873"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	msg, ok := mockBot.sentMsgs[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", mockBot.sentMsgs[0])
	}
	if msg.ReplyToMessageID != 873 {
		t.Errorf("ReplyToMessageID = %d, want 873", msg.ReplyToMessageID)
	}

	if err := ch.Send(bus.OutboundMessage{ChatID: "456", Content: "x", ReplyTo: "abc"}); err == nil {
		t.Error("non-numeric reply-to id accepted")
	}
}

func TestTelegramChannel_Send_LongMessageChunks(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)
	mockBot := newMockBot()
	ch.SetBot(mockBot)

	long := strings.Repeat("سطر\n", 2000)
	if err := ch.Send(bus.OutboundMessage{ChatID: "456", Content: long}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(mockBot.sentMsgs) < 2 {
		t.Fatalf("long message sent in %d chunks, want >= 2", len(mockBot.sentMsgs))
	}
}

func TestTelegramChannel_HandleMessage_Text(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)

	ch.handleMessage(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 123, UserName: "testuser", FirstName: "Test"},
		Chat: &tgbotapi.Chat{ID: 456},
		Text: "یادم بنداز فردا",
		Date: 1234567890,
	})

	select {
	case msg := <-b.Inbound:
		if msg.Kind != bus.TurnText {
			t.Errorf("kind = %q, want text", msg.Kind)
		}
		if msg.SenderID != "123" || msg.ChatID != "456" {
			t.Errorf("ids = %s/%s", msg.SenderID, msg.ChatID)
		}
		if msg.Content != "یادم بنداز فردا" {
			t.Errorf("content = %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
	}
}

func TestTelegramChannel_HandleMessage_Command(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)

	ch.handleMessage(&tgbotapi.Message{
		From:     &tgbotapi.User{ID: 123},
		Chat:     &tgbotapi.Chat{ID: 456},
		Text:     "/list",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
		Date:     1234567890,
	})

	select {
	case msg := <-b.Inbound:
		if msg.Kind != bus.TurnCommand {
			t.Errorf("kind = %q, want command", msg.Kind)
		}
		if msg.Content != "/list" {
			t.Errorf("content = %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
	}
}

func TestTelegramChannel_HandleMessage_Rejected(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{
		Token:     "fake-token",
		AllowFrom: []string{"999"},
	}, b)

	ch.handleMessage(&tgbotapi.Message{
		From: &tgbotapi.User{ID: 123},
		Chat: &tgbotapi.Chat{ID: 456},
		Text: "hello",
		Date: 1234567890,
	})

	select {
	case msg := <-b.Inbound:
		t.Fatalf("rejected sender got through: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTelegramChannel_HandleMessage_Voice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OggS-fake-audio"))
	}))
	defer srv.Close()

	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)
	mockBot := newMockBot()
	mockBot.files["voice-1"] = tgbotapi.File{FileID: "voice-1", FilePath: "voice/file_1.oga", FileSize: 15}
	ch.SetBot(mockBot)

	// file.Link points at api.telegram.org; redirect it to the stub
	ch.httpClient = &http.Client{Transport: roundTripTo(srv.URL)}

	ch.handleMessage(&tgbotapi.Message{
		From:  &tgbotapi.User{ID: 123},
		Chat:  &tgbotapi.Chat{ID: 456},
		Voice: &tgbotapi.Voice{FileID: "voice-1", Duration: 5, MimeType: "audio/ogg"},
		Date:  1234567890,
	})

	select {
	case msg := <-b.Inbound:
		if msg.Kind != bus.TurnVoice {
			t.Errorf("kind = %q, want voice", msg.Kind)
		}
		if string(msg.Voice) != "OggS-fake-audio" {
			t.Errorf("voice bytes = %q", msg.Voice)
		}
		if !strings.HasSuffix(msg.VoiceName, ".ogg") {
			t.Errorf("voice name = %q", msg.VoiceName)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
	}
}

func TestTelegramChannel_HandleMessage_VoiceTooLong(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)
	ch.SetBot(newMockBot())

	ch.handleMessage(&tgbotapi.Message{
		From:  &tgbotapi.User{ID: 123},
		Chat:  &tgbotapi.Chat{ID: 456},
		Voice: &tgbotapi.Voice{FileID: "voice-1", Duration: 120},
		Date:  1234567890,
	})

	select {
	case <-b.Inbound:
		t.Fatal("over-long voice message got through")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTelegramChannel_HandleCallback(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)
	mockBot := newMockBot()
	ch.SetBot(mockBot)

	ch.handleCallback(&tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 123},
		Data:    "accept:tok",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 456}, MessageID: 9},
	})

	select {
	case msg := <-b.Inbound:
		if msg.Kind != bus.TurnButton {
			t.Errorf("kind = %q, want button", msg.Kind)
		}
		if msg.Content != "accept:tok" {
			t.Errorf("content = %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
	}

	if len(mockBot.requests) != 1 {
		t.Errorf("callback not acked: %d requests", len(mockBot.requests))
	}
}

func TestTelegramChannel_Stop_NotStarted(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch, _ := NewTelegramChannel(config.TelegramConfig{Token: "fake-token"}, b)
	if err := ch.Stop(); err != nil {
		t.Errorf("Stop error: %v", err)
	}
}

// roundTripTo rewrites every request to the given base URL, keeping only
// the path.
type roundTripTo string

func (r roundTripTo) RoundTrip(req *http.Request) (*http.Response, error) {
	target := string(r) + req.URL.Path
	redirected, err := http.NewRequest(req.Method, target, req.Body)
	if err != nil {
		return nil, err
	}
	return http.DefaultTransport.RoundTrip(redirected)
}
