package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hamyarlab/yadavar/internal/config"
)

const systemPromptTemplate = `You are the intent extractor for a reminder bot. Users write Persian or English.
Current UTC datetime: %s
Dialogue context: %s

Classify the message and pull out reminder slots. Respond ONLY with JSON:
{
  "intent": "create_reminder|list_reminders|delete_reminder|confirm|cancel|help|buy_premium|unknown",
  "task": "the thing to be reminded of, stripped of date/time words, or empty",
  "dateExpr": "the date words exactly as the user wrote them, or empty",
  "timeExpr": "the time words exactly as the user wrote them, or empty",
  "recurrenceExpr": "daily|weekly|monthly or empty",
  "meridiemHint": "am|pm or empty",
  "rawTimeInput": "the full original time phrase, or empty",
  "targetId": 0
}

Rules:
- Keep dateExpr/timeExpr verbatim; never translate, never resolve them.
- "every day/هر روز" means recurrenceExpr "daily"; "every week/هر هفته" weekly; "every month/هر ماه" monthly.
- A lone date, time, task fragment, or meridiem word IS meaningful when the dialogue context says a slot is awaited.
- If the context is awaiting a slot but the message clearly states a whole new reminder (a task AND a date or time), still extract everything with intent create_reminder.
- targetId is the numeric reminder id for delete requests, else 0.
- When nothing fits, use intent "unknown" and empty slots.`

// OpenAIExtractor implements Extractor against an OpenAI-compatible chat
// endpoint.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
	now    func() time.Time
}

func NewOpenAIExtractor(cfg config.ProviderConfig) *OpenAIExtractor {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIExtractor{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		now:    time.Now,
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, text, contextTag string) (*Slots, error) {
	sysPrompt := fmt.Sprintf(systemPromptTemplate,
		e.now().UTC().Format("Monday, 2 January 2006 15:04 MST"), contextTag)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: sysPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extractor chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	slots, err := DecodeSlots(resp.Choices[0].Message.Content)
	if err != nil {
		log.Printf("[nlu] undecodable extractor output: %v", err)
		return nil, nil
	}
	return slots, nil
}

// DecodeSlots parses model output into Slots, tolerating markdown fences
// and mildly broken JSON.
func DecodeSlots(raw string) (*Slots, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty extractor output")
	}

	var slots Slots
	if err := json.Unmarshal([]byte(s), &slots); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(s)
		if repairErr != nil {
			return nil, fmt.Errorf("decode slots: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &slots); err != nil {
			return nil, fmt.Errorf("decode repaired slots: %w", err)
		}
	}

	if slots.Intent == "" {
		slots.Intent = IntentUnknown
	}
	slots.Task = strings.TrimSpace(slots.Task)
	slots.DateExpr = strings.TrimSpace(slots.DateExpr)
	slots.TimeExpr = strings.TrimSpace(slots.TimeExpr)
	slots.RecurrenceExpr = strings.ToLower(strings.TrimSpace(slots.RecurrenceExpr))
	slots.MeridiemHint = strings.ToLower(strings.TrimSpace(slots.MeridiemHint))
	return &slots, nil
}
