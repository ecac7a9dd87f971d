package media

import (
	"context"
	"errors"
)

// ErrNoVideoStream reports a probed input without any video stream, which is
// expected for audio-only uploads.
var ErrNoVideoStream = errors.New("no video stream")

// Stream is one stream of a probed media file.
type Stream struct {
	Kind string `json:"kind"` // "video", "audio", ...
}

// ProbeResult is the subset of probe output the pipeline consumes.
type ProbeResult struct {
	DurationSec float64  `json:"durationSec"`
	Streams     []Stream `json:"streams"`
}

// HasVideo reports whether any probed stream is a video stream.
func (p *ProbeResult) HasVideo() bool {
	for _, s := range p.Streams {
		if s.Kind == "video" {
			return true
		}
	}
	return false
}

// MergeMode selects how the dub track is combined with the original audio.
const (
	MergeReplace = "replace"
	MergeMix     = "mix"
)

// MergeSpec describes one dub-merge invocation.
type MergeSpec struct {
	VideoPath string
	AudioPath string
	OutPath   string
	// Mode: MergeReplace or MergeMix
	Mode string
	// TTSDuration parametrizes the mix fades; 0 yields a zero-length fade.
	TTSDuration float64
	// SubtitlePath, when set, burns the SRT into the video stream.
	SubtitlePath string
}

// Tool is the media-processing capability the pipeline depends on.
type Tool interface {
	// ExtractAudio decodes the source's audio track into a 16-bit PCM WAV,
	// reporting progress as a 0-100 percent.
	ExtractAudio(ctx context.Context, videoPath, wavPath string, onProgress func(int)) error
	// Probe returns duration and stream layout.
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	// ConvertForASR resamples to mono 16 kHz 16-bit PCM WAV.
	ConvertForASR(ctx context.Context, inPath, outPath string) error
	// Denoise applies a 200 Hz highpass and an FFT denoiser.
	Denoise(ctx context.Context, inPath, outPath string) error
	// MergeDub combines the original video with the dub track.
	MergeDub(ctx context.Context, spec MergeSpec) error
}
