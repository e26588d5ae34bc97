package stt

import (
	"context"
	"fmt"
	"io"

	"github.com/nikhilbhutani/historyhub/internal/config"
)

// Request holds one audio upload to transcribe.
type Request struct {
	Filename string    `json:"filename"`
	Audio    io.Reader `json:"-"`
	Language string    `json:"language,omitempty"`
	Prompt   string    `json:"prompt,omitempty"`
}

// Response holds the transcription result.
type Response struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Provider string  `json:"provider"`
}

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// FromConfig builds the backend selected by cfg.Backend.
func FromConfig(cfg config.STTConfig) (Provider, error) {
	switch cfg.Backend {
	case "", "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	case "local":
		return NewLocal(cfg.LocalBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown stt backend %q", cfg.Backend)
	}
}
