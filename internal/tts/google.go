package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dubforge/internal/config"
)

const (
	googleTTSURL = "https://texttospeech.googleapis.com/v1/text:synthesize"
	ttsTimeout   = 2 * time.Minute
)

// Google synthesizes speech via the Cloud Text-to-Speech REST API.
type Google struct {
	cfg    config.TTSConfig
	client *resty.Client
}

func NewGoogle(cfg config.TTSConfig) *Google {
	client := resty.New().
		SetTimeout(ttsTimeout).
		SetHeader("Content-Type", "application/json")

	return &Google{cfg: cfg, client: client}
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

func (g *Google) Synthesize(ctx context.Context, text, outPath string, opts Options) error {
	ctx, cancel := context.WithTimeout(ctx, ttsTimeout)
	defer cancel()

	lang := opts.LanguageCode
	if lang == "" {
		lang = g.cfg.Language
	}
	voice := map[string]any{"languageCode": lang}
	if name := firstNonEmpty(opts.Voice, g.cfg.Voice); name != "" {
		voice["name"] = name
	}
	encoding := opts.Encoding
	if encoding == "" {
		encoding = "MP3"
	}

	var out synthesizeResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.cfg.APIKey).
		SetBody(map[string]any{
			"input":       map[string]any{"text": text},
			"voice":       voice,
			"audioConfig": map[string]any{"audioEncoding": encoding},
		}).
		SetResult(&out).
		Post(googleTTSURL)
	if err != nil {
		return fmt.Errorf("google tts request: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("google tts error (%d): %s", resp.StatusCode(), resp.String())
	}

	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return fmt.Errorf("decode audio content: %w", err)
	}
	if len(audio) == 0 {
		return ErrEmptyAudio
	}

	if err := os.WriteFile(outPath, audio, 0644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
