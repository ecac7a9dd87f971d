package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/dubforge/internal/config"
	"github.com/dubforge/pkg/logger"
)

// ErrUnknownProvider is returned by New for an unrecognized provider name.
var ErrUnknownProvider = errors.New("unknown translate provider")

// Provider translates UTF-8 text into the target language.
type Provider interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// New selects a provider from configuration, wrapping it with a rate
// limiter when an RPM cap is configured.
func New(cfg config.TranslateConfig) (Provider, error) {
	var p Provider

	switch strings.ToLower(cfg.Provider) {
	case "mock":
		p = NewMock()
	case "", "google":
		p = NewGoogle(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	if cfg.RateLimitRPM > 0 {
		logger.Infof("Translator rate limit: %d RPM", cfg.RateLimitRPM)
		p = &limited{
			inner:   p,
			limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1),
		}
	}

	return p, nil
}

// limited applies an RPM cap ahead of the wrapped provider.
type limited struct {
	inner   Provider
	limiter *rate.Limiter
}

func (l *limited) Translate(ctx context.Context, text, target string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return l.inner.Translate(ctx, text, target)
}
