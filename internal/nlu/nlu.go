// Package nlu extracts structured reminder slots from free-form user text.
// The orchestrator only depends on the Extractor interface; the production
// implementation calls an OpenAI-compatible chat endpoint.
package nlu

import "context"

// Intent is the coarse classification of one user turn.
type Intent string

const (
	IntentCreate  Intent = "create_reminder"
	IntentList    Intent = "list_reminders"
	IntentDelete  Intent = "delete_reminder"
	IntentConfirm Intent = "confirm"
	IntentCancel  Intent = "cancel"
	IntentHelp    Intent = "help"
	IntentBuy     Intent = "buy_premium"
	IntentUnknown Intent = "unknown"
)

// Slots is the extractor's structured reading of one turn. Empty strings
// mean "not mentioned"; the date/time expressions stay verbatim so the
// resolver owns all calendar interpretation.
type Slots struct {
	Intent         Intent `json:"intent"`
	Task           string `json:"task"`
	DateExpr       string `json:"dateExpr"`
	TimeExpr       string `json:"timeExpr"`
	RecurrenceExpr string `json:"recurrenceExpr"`
	MeridiemHint   string `json:"meridiemHint"`
	RawTimeInput   string `json:"rawTimeInput"`
	TargetID       int64  `json:"targetId"`
}

// Context tags let the prompt bias extraction toward the slot the dialogue
// is currently waiting on.
const (
	TagIdle             = "idle"
	TagAwaitingTask     = "awaiting_task"
	TagAwaitingDate     = "awaiting_date"
	TagAwaitingTime     = "awaiting_time"
	TagAwaitingDateTime = "awaiting_datetime"
	TagAwaitingMeridiem = "awaiting_meridiem"
)

// Extractor turns raw text into Slots. A nil, nil return means the
// collaborator produced nothing usable this turn (transient failure); the
// caller should ask the user to rephrase rather than treat it as a parse
// verdict.
type Extractor interface {
	Extract(ctx context.Context, text, contextTag string) (*Slots, error)
}
