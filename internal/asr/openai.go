package asr

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dubforge/internal/config"
)

// asrTimeout bounds a single transcription call.
const asrTimeout = 5 * time.Minute

// OpenAI transcribes via the Whisper API, requesting verbose JSON so the
// payload carries segment (and optionally word) timing.
type OpenAI struct {
	cfg    config.ASRConfig
	client *openai.Client
}

func NewOpenAI(cfg config.ASRConfig) *OpenAI {
	return &OpenAI{
		cfg:    cfg,
		client: openai.NewClient(cfg.APIKey),
	}
}

func (o *OpenAI) Transcribe(ctx context.Context, audioPath string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, asrTimeout)
	defer cancel()

	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if o.cfg.Language != "" {
		req.Language = o.cfg.Language
	}
	if o.cfg.Timestamps {
		req.TimestampGranularities = []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
			openai.TranscriptionTimestampGranularityWord,
		}
	}

	resp, err := o.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}
	return resp, nil
}
