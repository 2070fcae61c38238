package transcriber

import (
	"context"
	"fmt"

	"voicepad/audio"
)

// Probe opens and closes a streaming connection, checking the API key and
// that the endpoint is reachable.
func Probe(ctx context.Context, cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("deepgram: API key not set")
	}
	ws, err := dialDeepgram(ctx, streamConfig{
		Endpoint:   cfg.Endpoint,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		return err
	}
	return ws.Close()
}
