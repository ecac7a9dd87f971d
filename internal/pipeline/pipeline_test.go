package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubforge/internal/asr"
	"github.com/dubforge/internal/config"
	"github.com/dubforge/internal/media"
	"github.com/dubforge/internal/translate"
	"github.com/dubforge/internal/tts"
	"github.com/dubforge/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

// fakeTool is an in-memory media.Tool that writes tiny placeholder files.
type fakeTool struct {
	hasVideo    bool
	durationSec float64
	extractErr  error
	denoiseErr  error
	probeErr    error
	mergeErr    error

	mergeSpecs []media.MergeSpec
}

func (f *fakeTool) ExtractAudio(_ context.Context, _, wavPath string, onProgress func(int)) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	return os.WriteFile(wavPath, []byte("wav"), 0644)
}

func (f *fakeTool) Probe(_ context.Context, _ string) (*media.ProbeResult, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	streams := []media.Stream{{Kind: "audio"}}
	if f.hasVideo {
		streams = append(streams, media.Stream{Kind: "video"})
	}
	return &media.ProbeResult{DurationSec: f.durationSec, Streams: streams}, nil
}

func (f *fakeTool) ConvertForASR(_ context.Context, _, outPath string) error {
	return os.WriteFile(outPath, []byte("wav16k"), 0644)
}

func (f *fakeTool) Denoise(_ context.Context, _, outPath string) error {
	if f.denoiseErr != nil {
		return f.denoiseErr
	}
	return os.WriteFile(outPath, []byte("clean"), 0644)
}

func (f *fakeTool) MergeDub(_ context.Context, spec media.MergeSpec) error {
	f.mergeSpecs = append(f.mergeSpecs, spec)
	if f.mergeErr != nil {
		return f.mergeErr
	}
	return os.WriteFile(spec.OutPath, []byte("mp4"), 0644)
}

// fixedASR returns a canned payload or error.
type fixedASR struct {
	payload any
	err     error
}

func (f *fixedASR) Transcribe(context.Context, string) (any, error) {
	return f.payload, f.err
}

// failTranslate always errors.
type failTranslate struct{}

func (failTranslate) Translate(context.Context, string, string) (string, error) {
	return "", errors.New("quota exceeded")
}

// recordTTS captures the synthesized text.
type recordTTS struct {
	text string
	err  error
}

func (r *recordTTS) Synthesize(_ context.Context, text, outPath string, _ tts.Options) error {
	r.text = text
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(outPath, []byte("mp3"), 0644)
}

func testConfig() *config.Config {
	return &config.Config{
		ASR:       config.ASRConfig{Provider: "mock"},
		Translate: config.TranslateConfig{Provider: "mock", Target: "id"},
		TTS:       config.TTSConfig{Provider: "mock", Language: "id-ID"},
		Merge:     config.MergeConfig{Mode: media.MergeReplace},
		Subtitle:  config.SubtitleConfig{},
	}
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("video"), 0644))
	return path
}

func newEngine(cfg *config.Config, tool media.Tool, asrP asr.Provider, transP translate.Provider, ttsP tts.Provider) *Engine {
	if asrP == nil {
		asrP = asr.NewMock(cfg.ASR)
	}
	if transP == nil {
		transP = translate.NewMock()
	}
	if ttsP == nil {
		ttsP = tts.NewMock()
	}
	return New(cfg, tool, asrP, transP, ttsP)
}

func TestRunHappyPath(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, durationSec: 5}
	engine := newEngine(testConfig(), tool, nil, nil, nil)

	var progress []int
	result, err := engine.Run(context.Background(), Request{
		SourcePath:   src,
		OriginalName: "clip.mp4",
	}, func(p int) { progress = append(progress, p) })

	require.NoError(t, err)
	for _, kind := range []string{"audio", "transcript", "translated", "tts", "dubbed"} {
		path, ok := result[kind]
		require.True(t, ok, "missing artifact %q", kind)
		assert.FileExists(t, path)
	}
	assert.NotContains(t, result, "enhancedAudio")

	// Transcript carries its header and the sidecar parses back.
	transcript, err := os.ReadFile(result["transcript"])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(transcript), "TRANSCRIPT\nSource: clip.mp4\n\n"))

	sidecar, err := os.ReadFile(result["transcript"] + ".json")
	require.NoError(t, err)
	var canonical asr.Transcript
	require.NoError(t, json.Unmarshal(sidecar, &canonical))
	assert.NotEmpty(t, canonical.Text)

	// Progress is monotone and finishes at 100.
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestRunSourceMissingFails(t *testing.T) {
	tool := &fakeTool{hasVideo: true}
	engine := newEngine(testConfig(), tool, nil, nil, nil)

	_, err := engine.Run(context.Background(), Request{
		SourcePath:   filepath.Join(t.TempDir(), "nope.mp4"),
		OriginalName: "nope.mp4",
	}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "source file missing")
}

func TestRunExtractFailureFatal(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, extractErr: errors.New("codec not found")}
	engine := newEngine(testConfig(), tool, nil, nil, nil)

	_, err := engine.Run(context.Background(), Request{SourcePath: src, OriginalName: "clip.mp4"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract audio")
}

func TestRunAudioOnlySkipsMerge(t *testing.T) {
	src := writeSource(t, "voice.wav")
	tool := &fakeTool{hasVideo: false, durationSec: 3}
	engine := newEngine(testConfig(), tool, nil, nil, nil)

	result, err := engine.Run(context.Background(), Request{SourcePath: src, OriginalName: "voice.wav"}, nil)

	require.NoError(t, err)
	assert.NotContains(t, result, "dubbed")
	assert.FileExists(t, filepath.Join(filepath.Dir(src), "voice-merge.skip.txt"))
	assert.Empty(t, tool.mergeSpecs)
}

func TestRunTranslateFailureFallsBackToTranscript(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, durationSec: 5}
	ttsRec := &recordTTS{}
	engine := newEngine(testConfig(), tool, &fixedASR{payload: "hello world"}, failTranslate{}, ttsRec)

	result, err := engine.Run(context.Background(), Request{SourcePath: src, OriginalName: "clip.mp4"}, nil)
	require.NoError(t, err)

	translated, readErr := os.ReadFile(result["translated"])
	require.NoError(t, readErr)
	assert.True(t, strings.HasPrefix(string(translated), "TRANSLATION error:"))

	// TTS gets the transcript text, not the error string.
	assert.Equal(t, "hello world", ttsRec.text)
	assert.Contains(t, result, "dubbed")
}

func TestRunASRFailureStillCompletes(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, durationSec: 5}
	ttsRec := &recordTTS{}
	engine := newEngine(testConfig(), tool, &fixedASR{err: errors.New("asr down")}, nil, ttsRec)

	result, err := engine.Run(context.Background(), Request{SourcePath: src, OriginalName: "clip.mp4"}, nil)
	require.NoError(t, err)

	transcript, readErr := os.ReadFile(result["transcript"])
	require.NoError(t, readErr)
	assert.Contains(t, string(transcript), "ASR error:")

	// Downstream stages still ran.
	assert.Contains(t, result, "translated")
	assert.Contains(t, result, "tts")
	assert.Contains(t, result, "dubbed")
	require.Len(t, tool.mergeSpecs, 1)
}

func TestRunTTSFailureSkipsMerge(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, durationSec: 5}
	engine := newEngine(testConfig(), tool, nil, nil, &recordTTS{err: errors.New("voice gone")})

	result, err := engine.Run(context.Background(), Request{SourcePath: src, OriginalName: "clip.mp4"}, nil)
	require.NoError(t, err)

	assert.NotContains(t, result, "tts")
	assert.NotContains(t, result, "dubbed")
	assert.FileExists(t, filepath.Join(filepath.Dir(src), "clip-tts.mp3.error.txt"))
	assert.Empty(t, tool.mergeSpecs)
}

func TestRunEnhanceFailureFallsBack(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, durationSec: 5, denoiseErr: errors.New("filter missing")}
	cfg := testConfig()
	cfg.Merge.Enhance = true
	engine := newEngine(cfg, tool, nil, nil, nil)

	result, err := engine.Run(context.Background(), Request{SourcePath: src, OriginalName: "clip.mp4"}, nil)
	require.NoError(t, err)

	assert.NotContains(t, result, "enhancedAudio")
	assert.FileExists(t, filepath.Join(filepath.Dir(src), "clip-enhance.error.txt"))
}

func TestRunEnhanceSuccess(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, durationSec: 5}
	enhance := true
	engine := newEngine(testConfig(), tool, nil, nil, nil)

	result, err := engine.Run(context.Background(), Request{
		SourcePath:   src,
		OriginalName: "clip.mp4",
		Enhance:      &enhance,
	}, nil)
	require.NoError(t, err)

	assert.Contains(t, result, "enhancedAudio")
	assert.FileExists(t, result["enhancedAudio"])
}

func TestRunMergeFailureTolerated(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, durationSec: 5, mergeErr: errors.New("muxer error")}
	engine := newEngine(testConfig(), tool, nil, nil, nil)

	result, err := engine.Run(context.Background(), Request{SourcePath: src, OriginalName: "clip.mp4"}, nil)
	require.NoError(t, err)

	assert.NotContains(t, result, "dubbed")
	assert.FileExists(t, filepath.Join(filepath.Dir(src), "clip-merge.error.txt"))
}

func TestRunBurnWithWordTimingsWritesSRT(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, durationSec: 10}
	cfg := testConfig()
	cfg.ASR.Timestamps = true
	burn := true
	engine := newEngine(cfg, tool, nil, nil, nil)

	_, err := engine.Run(context.Background(), Request{
		SourcePath:    src,
		OriginalName:  "clip.mp4",
		BurnSubtitles: &burn,
	}, nil)
	require.NoError(t, err)

	srtPath := filepath.Join(filepath.Dir(src), "clip.srt")
	assert.FileExists(t, srtPath)

	require.Len(t, tool.mergeSpecs, 1)
	assert.True(t, filepath.IsAbs(tool.mergeSpecs[0].SubtitlePath))

	srt, readErr := os.ReadFile(srtPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(srt), " --> ")
}

func TestRunMixModeUsesTTSDuration(t *testing.T) {
	src := writeSource(t, "clip.mp4")
	tool := &fakeTool{hasVideo: true, durationSec: 6}
	mode := media.MergeMix
	engine := newEngine(testConfig(), tool, nil, nil, nil)

	_, err := engine.Run(context.Background(), Request{
		SourcePath:   src,
		OriginalName: "clip.mp4",
		MergeMode:    &mode,
	}, nil)
	require.NoError(t, err)

	require.Len(t, tool.mergeSpecs, 1)
	assert.Equal(t, media.MergeMix, tool.mergeSpecs[0].Mode)
	assert.Equal(t, 6.0, tool.mergeSpecs[0].TTSDuration)
}

func TestMergeModeResolution(t *testing.T) {
	mix := "MIX"
	bogus := "sideways"

	assert.Equal(t, "replace", mergeMode(nil, "replace"))
	assert.Equal(t, "mix", mergeMode(nil, "mix"))
	assert.Equal(t, "mix", mergeMode(&mix, "replace"))
	assert.Equal(t, "replace", mergeMode(&bogus, "mix"))
}

func TestLangCode(t *testing.T) {
	assert.Equal(t, "id-ID", langCode("id", "en-US"))
	assert.Equal(t, "ja-JP", langCode("ja", "en-US"))
	assert.Equal(t, "cmn-CN", langCode("zh", "en-US"))
	assert.Equal(t, "en-US", langCode("tlh", "en-US"))
}
