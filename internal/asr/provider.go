package asr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dubforge/internal/config"
)

// ErrUnknownProvider is returned by New for an unrecognized provider name.
var ErrUnknownProvider = errors.New("unknown ASR provider")

// Provider transcribes an audio file and returns the raw provider payload,
// which callers feed through Normalize.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string) (any, error)
}

// New selects a provider from configuration.
func New(cfg config.ASRConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "mock":
		return NewMock(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "google":
		return NewGoogle(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
