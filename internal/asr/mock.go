package asr

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dubforge/internal/config"
)

// Mock produces deterministic placeholder transcripts for offline testing.
type Mock struct {
	cfg config.ASRConfig
}

func NewMock(cfg config.ASRConfig) *Mock {
	return &Mock{cfg: cfg}
}

// Transcribe returns a fixed sentence derived from the file name. With
// timestamps enabled the payload carries segment and word timing so the
// subtitle path is exercised end to end.
func (m *Mock) Transcribe(_ context.Context, audioPath string) (any, error) {
	base := filepath.Base(audioPath)
	text := fmt.Sprintf("This is a mock transcription of %s.", base)

	if !m.cfg.Timestamps {
		return text, nil
	}

	tokens := strings.Fields(text)
	words := make([]any, 0, len(tokens))
	const perWord = 0.4
	for i, tok := range tokens {
		words = append(words, map[string]any{
			"word":  tok,
			"start": float64(i) * perWord,
			"end":   float64(i)*perWord + perWord,
		})
	}
	end := float64(len(tokens)) * perWord

	return map[string]any{
		"text": text,
		"segments": []any{
			map[string]any{
				"text":  text,
				"start": 0.0,
				"end":   end,
				"words": words,
			},
		},
	}, nil
}
