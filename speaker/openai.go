package speaker

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"voicepad/audio"
)

// OpenAI speech responses in pcm format are 24kHz mono 16-bit.
const openAISampleRate = 24000

const openAIMaxInput = 4096

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

type OpenAI struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key not set")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := openai.SpeechModel(cfg.Model)
	if model == "" {
		model = openai.TTSModel1
	}
	voice := openai.SpeechVoice(cfg.Voice)
	if voice == "" {
		voice = openai.VoiceAlloy
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		voice:  voice,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Synthesize(ctx context.Context, req Request) (PCM, error) {
	if len([]rune(req.Text)) > openAIMaxInput {
		return PCM{}, &BackendError{Code: CodeTextTooLong, Err: fmt.Errorf("input exceeds %d characters", openAIMaxInput)}
	}
	speed := req.Rate
	if speed <= 0 {
		speed = 1
	}
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          req.Text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          speed,
	})
	if err != nil {
		return PCM{}, &BackendError{Code: openAICode(err), Err: fmt.Errorf("openai speech: %w", err)}
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return PCM{}, &BackendError{Code: CodeNetwork, Err: fmt.Errorf("openai speech body: %w", err)}
	}
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	return PCM{
		Data:   data,
		Format: audio.Format{SampleRate: openAISampleRate, Channels: 1},
	}, nil
}

func openAICode(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
		return CodeSynthesisFailed
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 {
		return CodeSynthesisFailed
	}
	return CodeNetwork
}
