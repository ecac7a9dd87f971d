package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dubforge/pkg/logger"
)

// FFmpeg implements Tool by shelling out to ffmpeg/ffprobe.
type FFmpeg struct {
	ffmpegBin  string
	ffprobeBin string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{ffmpegBin: "ffmpeg", ffprobeBin: "ffprobe"}
}

func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, wavPath string, onProgress func(int)) error {
	// Duration drives the percent math; a probe failure just means no
	// intermediate progress.
	var totalSec float64
	if probe, err := f.Probe(ctx, videoPath); err == nil {
		totalSec = probe.DurationSec
	}

	args := []string{
		"-y", "-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-progress", "pipe:1", "-nostats",
		wavPath,
	}
	return f.runWithProgress(ctx, args, totalSec, onProgress)
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, f.ffprobeBin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	var raw struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &ProbeResult{}
	if d, err := strconv.ParseFloat(strings.TrimSpace(raw.Format.Duration), 64); err == nil {
		result.DurationSec = d
	}
	for _, s := range raw.Streams {
		result.Streams = append(result.Streams, Stream{Kind: s.CodecType})
	}
	return result, nil
}

func (f *FFmpeg) ConvertForASR(ctx context.Context, inPath, outPath string) error {
	return f.run(ctx,
		"-y", "-i", inPath,
		"-ac", "1",
		"-ar", "16000",
		"-acodec", "pcm_s16le",
		outPath,
	)
}

func (f *FFmpeg) Denoise(ctx context.Context, inPath, outPath string) error {
	return f.run(ctx,
		"-y", "-i", inPath,
		"-af", "highpass=f=200,afftdn",
		"-acodec", "pcm_s16le",
		outPath,
	)
}

func (f *FFmpeg) MergeDub(ctx context.Context, spec MergeSpec) error {
	return f.run(ctx, mergeArgs(spec)...)
}

// mergeArgs builds the full ffmpeg argument list for a merge. Split out so
// the filter construction is testable without running ffmpeg.
func mergeArgs(spec MergeSpec) []string {
	args := []string{"-y", "-i", spec.VideoPath, "-i", spec.AudioPath}

	burn := spec.SubtitlePath != ""

	if spec.Mode == MergeMix {
		fade := math.Min(0.3, spec.TTSDuration/5)
		if fade < 0 {
			fade = 0
		}
		outStart := spec.TTSDuration - fade
		if outStart < 0 {
			outStart = 0
		}

		filter := fmt.Sprintf(
			"[0:a]volume=0.7[orig];[1:a]afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s[tts];"+
				"[orig][tts]amix=inputs=2:duration=shortest:dropout_transition=0,dynaudnorm[aout]",
			formatSeconds(fade), formatSeconds(outStart), formatSeconds(fade),
		)
		if burn {
			filter += fmt.Sprintf(";[0:v]subtitles=%s[vout]", escapeFilterPath(spec.SubtitlePath))
			args = append(args,
				"-filter_complex", filter,
				"-map", "[vout]",
				"-map", "[aout]",
			)
		} else {
			args = append(args,
				"-filter_complex", filter,
				"-map", "0:v:0",
				"-map", "[aout]",
				"-c:v", "copy",
			)
		}
	} else {
		// Replace: audio comes entirely from the dub track, shortest wins.
		if burn {
			args = append(args,
				"-vf", "subtitles="+escapeFilterPath(spec.SubtitlePath),
				"-map", "0:v:0",
				"-map", "1:a:0",
			)
		} else {
			args = append(args,
				"-map", "0:v:0",
				"-map", "1:a:0",
				"-c:v", "copy",
			)
		}
		args = append(args, "-shortest")
	}

	return append(args, spec.OutPath)
}

// formatSeconds renders a fade parameter without trailing zeros (0.3, 5.7, 0).
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// escapeFilterPath quotes characters that ffmpeg's filter parser treats
// specially inside a subtitles= argument.
func escapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return r.Replace(path)
}

func (f *FFmpeg) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegBin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, tail(output, 2048))
	}
	return nil
}

// runWithProgress runs ffmpeg with -progress pipe:1 and converts out_time_us
// lines into percent callbacks.
func (f *FFmpeg) runWithProgress(ctx context.Context, args []string, totalSec float64, onProgress func(int)) error {
	cmd := exec.CommandContext(ctx, f.ffmpegBin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			if onProgress == nil || totalSec <= 0 {
				continue
			}
			us, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			pct := int(us / (totalSec * 1e6) * 100)
			if pct > 100 {
				pct = 100
			}
			if pct >= 0 {
				onProgress(pct)
			}
		case "progress":
			if value == "end" && onProgress != nil {
				onProgress(100)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, tail(stderr.Bytes(), 2048))
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	logger.Debugf("ffmpeg output truncated to last %d bytes", n)
	return string(b[len(b)-n:])
}
