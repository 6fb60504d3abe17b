package bus

import "time"

// TurnKind tells the orchestrator how an inbound event arrived.
type TurnKind string

const (
	TurnCommand TurnKind = "command"
	TurnText    TurnKind = "text"
	TurnVoice   TurnKind = "voice"
	TurnButton  TurnKind = "button"
)

type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Kind      TurnKind
	Content   string // text, command line, or button action payload
	Voice     []byte // downloaded audio for voice turns
	VoiceName string // filename hint for the transcriber
	Timestamp time.Time
	Metadata  map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// Button is one inline action rendered under an outbound message. Action is
// a namespaced string like "accept:<token>" that comes back as a TurnButton
// inbound event when tapped.
type Button struct {
	Label  string
	Action string
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	ReplyTo string
	Buttons [][]Button
}
