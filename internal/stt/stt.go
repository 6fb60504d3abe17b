// Package stt transcribes voice turns. The orchestrator sees only the
// Transcriber interface; the production implementation is Whisper over an
// OpenAI-compatible endpoint.
package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hamyarlab/yadavar/internal/config"
)

type Transcriber interface {
	// Transcribe returns the best-effort transcript of the audio. An
	// empty transcript with a nil error means the audio carried no
	// recognizable speech.
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

func NewWhisperTranscriber(cfg config.ProviderConfig) *WhisperTranscriber {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &WhisperTranscriber{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.STTModel,
	}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	if filename == "" {
		filename = "voice.ogg"
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
