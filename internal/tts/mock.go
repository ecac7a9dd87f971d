package tts

import (
	"context"
	"os"
)

// mockMP3 is a minimal MPEG frame header so downstream tools see a
// non-empty MP3 artifact.
var mockMP3 = []byte{0xFF, 0xFB, 0x90, 0x00}

// Mock writes a tiny placeholder MP3 for offline testing.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Synthesize(_ context.Context, text, outPath string, _ Options) error {
	if text == "" {
		return ErrEmptyAudio
	}
	return os.WriteFile(outPath, mockMP3, 0644)
}
