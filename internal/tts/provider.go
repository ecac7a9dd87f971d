package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dubforge/internal/config"
)

// ErrUnknownProvider is returned by New for an unrecognized provider name.
var ErrUnknownProvider = errors.New("unknown TTS provider")

// ErrEmptyAudio is returned when the provider produced no audio bytes.
var ErrEmptyAudio = errors.New("tts returned empty audio")

// Options selects voice and encoding for one synthesis call.
type Options struct {
	Voice        string
	LanguageCode string
	// Encoding: provider audio encoding, e.g. "MP3"
	Encoding string
}

// Provider synthesizes speech and writes the audio file at outPath.
type Provider interface {
	Synthesize(ctx context.Context, text, outPath string, opts Options) error
}

// New selects a provider from configuration.
func New(cfg config.TTSConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "mock":
		return NewMock(), nil
	case "", "google":
		return NewGoogle(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
