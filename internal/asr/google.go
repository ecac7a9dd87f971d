package asr

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"

	"github.com/dubforge/internal/config"
)

const googleSpeechURL = "https://speech.googleapis.com/v1/speech:recognize"

// Google transcribes via the Cloud Speech-to-Text REST API. The raw
// {results: [{alternatives}]} payload is returned for normalization.
type Google struct {
	cfg    config.ASRConfig
	client *resty.Client
}

func NewGoogle(cfg config.ASRConfig) *Google {
	client := resty.New().
		SetTimeout(asrTimeout).
		SetHeader("Content-Type", "application/json")

	return &Google{cfg: cfg, client: client}
}

func (g *Google) Transcribe(ctx context.Context, audioPath string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, asrTimeout)
	defer cancel()

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	lang := g.cfg.Language
	if lang == "" {
		lang = "en-US"
	}

	body := map[string]any{
		"config": map[string]any{
			"encoding":              "LINEAR16",
			"sampleRateHertz":       16000,
			"languageCode":          lang,
			"enableWordTimeOffsets": g.cfg.Timestamps,
		},
		"audio": map[string]any{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	}

	var payload map[string]any
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.cfg.APIKey).
		SetBody(body).
		SetResult(&payload).
		Post(googleSpeechURL)
	if err != nil {
		return nil, fmt.Errorf("google speech request: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("google speech error (%d): %s", resp.StatusCode(), resp.String())
	}

	return payload, nil
}
