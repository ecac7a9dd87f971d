package translate

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dubforge/internal/config"
)

const (
	googleTranslateURL = "https://translation.googleapis.com/language/translate/v2"
	translateTimeout   = 2 * time.Minute
)

// Google translates via the Cloud Translation v2 REST API.
type Google struct {
	cfg    config.TranslateConfig
	client *resty.Client
}

func NewGoogle(cfg config.TranslateConfig) *Google {
	client := resty.New().
		SetTimeout(translateTimeout).
		SetHeader("Content-Type", "application/json")

	return &Google{cfg: cfg, client: client}
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

func (g *Google) Translate(ctx context.Context, text, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, translateTimeout)
	defer cancel()

	var out translateResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.cfg.APIKey).
		SetBody(map[string]any{
			"q":      text,
			"target": target,
			"format": "text",
		}).
		SetResult(&out).
		Post(googleTranslateURL)
	if err != nil {
		return "", fmt.Errorf("google translate request: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("google translate error (%d): %s", resp.StatusCode(), resp.String())
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("google translate: empty response")
	}

	return html.UnescapeString(out.Data.Translations[0].TranslatedText), nil
}
