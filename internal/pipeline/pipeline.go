package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dubforge/internal/asr"
	"github.com/dubforge/internal/config"
	"github.com/dubforge/internal/fileops"
	"github.com/dubforge/internal/media"
	"github.com/dubforge/internal/retry"
	"github.com/dubforge/internal/subtitle"
	"github.com/dubforge/internal/translate"
	"github.com/dubforge/internal/tts"
	"github.com/dubforge/pkg/logger"
)

// Request is the submission payload for one dubbing job. Pointer flags are
// nil when the submission did not supply them, in which case the configured
// defaults apply.
type Request struct {
	SourcePath    string  `json:"sourcePath"`
	OriginalName  string  `json:"originalName"`
	MergeMode     *string `json:"mergeMode,omitempty"`
	BurnSubtitles *bool   `json:"burnSubtitles,omitempty"`
	Enhance       *bool   `json:"enhance,omitempty"`
}

// Result maps artifact kinds to filesystem paths. Only artifacts that exist
// on disk appear.
type Result map[string]string

// Engine drives a job through the dubbing stages. Provider and media-tool
// failures fall back per stage; only a missing source or a failed audio
// extraction abort the job.
type Engine struct {
	cfg   *config.Config
	media media.Tool
	asr   asr.Provider
	trans translate.Provider
	tts   tts.Provider
}

func New(cfg *config.Config, tool media.Tool, asrP asr.Provider, transP translate.Provider, ttsP tts.Provider) *Engine {
	return &Engine{cfg: cfg, media: tool, asr: asrP, trans: transP, tts: ttsP}
}

// providerRetry bounds retries around every provider and media-tool call.
var providerRetry = retry.Options{Retries: 2}

// artifacts holds the per-stem output paths of one job.
type artifacts struct {
	audio      string
	enhanced   string
	asrWAV     string
	transcript string
	sidecar    string
	translated string
	tts        string
	srt        string
	dubbed     string
}

func newArtifacts(dir, stem string) artifacts {
	p := func(suffix string) string { return filepath.Join(dir, stem+suffix) }
	return artifacts{
		audio:      p("-audio.wav"),
		enhanced:   p("-audio-enhanced.wav"),
		asrWAV:     p("-asr.wav"),
		transcript: p("-transcript.txt"),
		sidecar:    p("-transcript.txt.json"),
		translated: p("-translated.txt"),
		tts:        p("-tts.mp3"),
		srt:        p(".srt"),
		dubbed:     p("-dubbed.mp4"),
	}
}

func (a artifacts) marker(name string) string {
	return filepath.Join(filepath.Dir(a.audio), name)
}

// monotone wraps a progress callback so reports never go backwards.
func monotone(report func(int)) func(int) {
	last := -1
	return func(p int) {
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		if p <= last {
			return
		}
		last = p
		report(p)
	}
}

// Run executes the full pipeline for one job. Tolerated stage failures leave
// marker files next to the stem and never fail the job.
func (e *Engine) Run(ctx context.Context, req Request, report func(int)) (Result, error) {
	if report == nil {
		report = func(int) {}
	}
	rep := monotone(report)
	rep(0)

	start := time.Now()
	logger.Infof("🎬 Job started: %s", req.OriginalName)

	if !fileops.Exists(req.SourcePath) {
		return nil, fmt.Errorf("source file missing: %s", req.SourcePath)
	}

	dir := filepath.Dir(req.SourcePath)
	stem := fileops.Stem(req.SourcePath)
	paths := newArtifacts(dir, stem)

	enhance := boolFlag(req.Enhance, e.cfg.Merge.Enhance)
	burn := boolFlag(req.BurnSubtitles, e.cfg.Merge.BurnSubtitles)
	mode := mergeMode(req.MergeMode, e.cfg.Merge.Mode)

	// Extract streams up to 20, or 15 when enhancement takes the last slice.
	extractCap := 20
	if enhance {
		extractCap = 15
	}
	logger.Infof("🎞️  Extracting audio: %s", paths.audio)
	err := e.media.ExtractAudio(ctx, req.SourcePath, paths.audio, func(pct int) {
		rep(pct * extractCap / 100)
	})
	if err != nil {
		return nil, fmt.Errorf("extract audio: %w", err)
	}
	rep(extractCap)

	asrInput := paths.audio
	if enhance {
		logger.Info("🧹 Enhancing audio")
		if err := e.media.Denoise(ctx, paths.audio, paths.enhanced); err != nil {
			logger.Warnf("⚠️ Enhance failed, using original audio: %v", err)
			e.writeMarker(paths.marker(stem+"-enhance.error.txt"), err.Error())
		} else {
			asrInput = paths.enhanced
		}
		rep(20)
	}

	transcript := e.transcribe(ctx, asrInput, paths)
	if err := e.writeTranscript(paths, req.OriginalName, transcript); err != nil {
		logger.Warnf("⚠️ Transcript write failed: %v", err)
	}
	rep(25)

	translated, translateFailed := e.translateText(ctx, transcript.Text)
	if err := os.WriteFile(paths.translated, []byte(translated), 0644); err != nil {
		logger.Warnf("⚠️ Translated write failed: %v", err)
	}
	rep(45)

	rep(55)
	ttsText := translated
	if translateFailed {
		ttsText = transcript.Text
	}
	ttsOK := e.synthesize(ctx, ttsText, paths, stem)
	rep(85)

	mergeOK := false
	if ttsOK {
		rep(90)
		mergeOK = e.merge(ctx, req, paths, stem, transcript, ttsText, mode, burn)
		rep(95)
	} else {
		logger.Info("⏭️  Merge skipped: no TTS audio")
	}

	result := Result{}
	collect := func(kind, path string) {
		if fileops.Exists(path) {
			result[kind] = path
		}
	}
	collect("audio", paths.audio)
	collect("enhancedAudio", paths.enhanced)
	collect("transcript", paths.transcript)
	collect("translated", paths.translated)
	collect("tts", paths.tts)
	if mergeOK {
		collect("dubbed", paths.dubbed)
	}
	rep(100)

	logger.Infof("✅ Job done in %v: %s", time.Since(start).Round(time.Millisecond), req.OriginalName)
	return result, nil
}

// transcribe runs ASR over the prepared audio and normalizes the payload.
// Failures produce an error transcript so downstream stages still run.
func (e *Engine) transcribe(ctx context.Context, audioPath string, paths artifacts) *asr.Transcript {
	// The Google recognizer expects mono 16 kHz LINEAR16; a failed
	// conversion just sends the original WAV.
	if strings.EqualFold(e.cfg.ASR.Provider, "google") {
		if err := e.media.ConvertForASR(ctx, audioPath, paths.asrWAV); err != nil {
			logger.Warnf("⚠️ ASR conversion failed, sending original audio: %v", err)
		} else {
			audioPath = paths.asrWAV
		}
	}

	logger.Infof("🎤 Transcribing (%s)", e.cfg.ASR.Provider)
	payload, err := retry.DoValue(ctx, func() (any, error) {
		return e.asr.Transcribe(ctx, audioPath)
	}, providerRetry)
	if err != nil {
		logger.Warnf("⚠️ ASR failed: %v", err)
		return &asr.Transcript{Text: "ASR error: " + err.Error(), Segments: []asr.Segment{}}
	}
	return asr.Normalize(payload)
}

// writeTranscript persists the plain-text transcript with its header plus
// the canonical JSON sidecar.
func (e *Engine) writeTranscript(paths artifacts, originalName string, t *asr.Transcript) error {
	body := fmt.Sprintf("TRANSCRIPT\nSource: %s\n\n%s\n", originalName, t.Text)
	if err := os.WriteFile(paths.transcript, []byte(body), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	sidecar, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript sidecar: %w", err)
	}
	if err := os.WriteFile(paths.sidecar, sidecar, 0644); err != nil {
		return fmt.Errorf("write transcript sidecar: %w", err)
	}
	return nil
}

// translateText returns the translated text and whether translation failed.
// On failure the text carries the error message so the artifact is still
// useful for diagnosis.
func (e *Engine) translateText(ctx context.Context, text string) (string, bool) {
	target := e.cfg.Translate.Target
	logger.Infof("🌐 Translating → %s", target)
	translated, err := retry.DoValue(ctx, func() (string, error) {
		return e.trans.Translate(ctx, text, target)
	}, providerRetry)
	if err != nil {
		logger.Warnf("⚠️ Translate failed: %v", err)
		return "TRANSLATION error: " + err.Error(), true
	}
	return translated, false
}

// synthesize runs TTS and reports whether an audio artifact was produced.
func (e *Engine) synthesize(ctx context.Context, text string, paths artifacts, stem string) bool {
	opts := tts.Options{
		Voice:        e.cfg.TTS.Voice,
		LanguageCode: langCode(e.cfg.Translate.Target, e.cfg.TTS.Language),
	}
	logger.Infof("🗣️  Synthesizing (%s, %s)", e.cfg.TTS.Provider, opts.LanguageCode)
	err := retry.Do(ctx, func() error {
		return e.tts.Synthesize(ctx, text, paths.tts, opts)
	}, providerRetry)
	if err != nil {
		logger.Warnf("⚠️ TTS failed: %v", err)
		e.writeMarker(paths.marker(stem+"-tts.mp3.error.txt"), err.Error())
		return false
	}
	return true
}

// merge combines the dub track back into the source video, burning subtitles
// when requested. Returns whether the dubbed artifact was produced.
func (e *Engine) merge(ctx context.Context, req Request, paths artifacts, stem string, transcript *asr.Transcript, subText, mode string, burn bool) bool {
	probe, err := e.media.Probe(ctx, req.SourcePath)
	if err != nil {
		logger.Warnf("⚠️ Probe failed: %v", err)
		e.writeMarker(paths.marker(stem+"-merge.error.txt"), fmt.Sprintf("probe: %v", err))
		return false
	}
	if !probe.HasVideo() {
		logger.Infof("⏭️  Merge skipped: %v", media.ErrNoVideoStream)
		e.writeMarker(paths.marker(stem+"-merge.skip.txt"), media.ErrNoVideoStream.Error())
		return false
	}

	spec := media.MergeSpec{
		VideoPath: req.SourcePath,
		AudioPath: paths.tts,
		OutPath:   paths.dubbed,
		Mode:      mode,
	}

	if burn {
		if srtPath, err := e.writeSubtitles(paths, transcript, subText, probe.DurationSec); err != nil {
			logger.Warnf("⚠️ Subtitle build failed, merging without burn: %v", err)
		} else {
			spec.SubtitlePath = srtPath
		}
	}

	if mode == media.MergeMix {
		// A failed TTS probe means a zero-length fade, which is still valid.
		if tp, err := e.media.Probe(ctx, paths.tts); err == nil {
			spec.TTSDuration = tp.DurationSec
		} else {
			logger.Warnf("⚠️ TTS probe failed, using zero fade: %v", err)
		}
	}

	logger.Infof("🎛️  Merging (%s, burn=%v)", mode, spec.SubtitlePath != "")
	if err := e.media.MergeDub(ctx, spec); err != nil {
		logger.Warnf("⚠️ Merge failed: %v", err)
		e.writeMarker(paths.marker(stem+"-merge.error.txt"), err.Error())
		return false
	}
	return true
}

// writeSubtitles builds the SRT for this job and returns its absolute path,
// which the burn filter requires.
func (e *Engine) writeSubtitles(paths artifacts, t *asr.Transcript, text string, videoDurationSec float64) (string, error) {
	opts := subtitle.Options{
		MaxWords:        e.cfg.Subtitle.MaxWords,
		MaxLineDuration: e.cfg.Subtitle.MaxLineDuration,
		MaxChars:        e.cfg.Subtitle.MaxChars,
	}

	var cues []subtitle.Cue
	switch {
	case t.HasWords():
		cues = subtitle.FromWords(t.AllWords(), opts)
	case len(t.Segments) > 0:
		cues = subtitle.FromSegments(t.Segments)
	default:
		total := videoDurationSec
		if total < 1 {
			total = 1
		}
		cues = subtitle.Proportional(text, total)
	}
	if len(cues) == 0 {
		return "", fmt.Errorf("no subtitle cues for %s", paths.srt)
	}

	if err := os.WriteFile(paths.srt, []byte(subtitle.Render(cues)), 0644); err != nil {
		return "", fmt.Errorf("write srt: %w", err)
	}
	abs, err := filepath.Abs(paths.srt)
	if err != nil {
		return paths.srt, nil
	}
	return abs, nil
}

// writeMarker drops a per-stage failure note next to the job's artifacts.
func (e *Engine) writeMarker(path, msg string) {
	if err := os.WriteFile(path, []byte(msg+"\n"), 0644); err != nil {
		logger.Warnf("⚠️ Marker write failed (%s): %v", path, err)
	}
}

func boolFlag(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func mergeMode(v *string, def string) string {
	if v == nil {
		return def
	}
	if strings.ToLower(*v) == media.MergeMix {
		return media.MergeMix
	}
	return media.MergeReplace
}
