package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultLocalBaseURL = "http://localhost:8178"

var ErrNoAudio = errors.New("stt: no audio provided")

// OpenAIConfig holds configuration for the OpenAI STT backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
}

// OpenAI transcribes audio with the Whisper API or any server speaking the
// same protocol.
type OpenAI struct {
	client *openai.Client
	model  string
	name   string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: 300 * time.Second}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		name:   "openai-whisper",
	}
}

// NewLocal points the client at a whisper.cpp server, which needs no key.
// Start the server with: ./server -m models/ggml-base.en.bin --port 8178
func NewLocal(baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultLocalBaseURL
	}
	o := NewOpenAI(OpenAIConfig{BaseURL: baseURL})
	o.name = "local-whisper"
	return o
}

func (o *OpenAI) Name() string { return o.name }

// Transcribe streams the audio to the backend unmodified.
func (o *OpenAI) Transcribe(ctx context.Context, req Request) (*Response, error) {
	if req.Audio == nil {
		return nil, ErrNoAudio
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: filename,
		Reader:   req.Audio,
		Language: req.Language,
		Prompt:   req.Prompt,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}

	return &Response{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
		Provider: o.name,
	}, nil
}
