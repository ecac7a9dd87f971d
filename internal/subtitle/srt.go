package subtitle

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/dubforge/internal/asr"
)

// Options bounds cue construction for the word-grouped algorithm.
type Options struct {
	MaxWords        int
	MaxLineDuration float64 // seconds
	MaxChars        int
}

const (
	DefaultMaxWords        = 7
	DefaultMaxLineDuration = 4.0
	DefaultMaxChars        = 80
)

func (o Options) withDefaults() Options {
	if o.MaxWords <= 0 {
		o.MaxWords = DefaultMaxWords
	}
	if o.MaxLineDuration <= 0 {
		o.MaxLineDuration = DefaultMaxLineDuration
	}
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	return o
}

// Cue is one SRT entry. Times are integer milliseconds so accumulated
// float drift never leaks into the rendered timing.
type Cue struct {
	Index   int
	StartMS int
	EndMS   int
	Text    string
}

// FromWords groups timed words into cues, greedily packing each cue until
// duration, character or word-count bounds would be exceeded. A word that
// alone exceeds every bound still forms its own cue.
func FromWords(words []asr.Word, opts Options) []Cue {
	opts = opts.withDefaults()
	maxDurMS := int(opts.MaxLineDuration * 1000)

	var cues []Cue
	i := 0
	for i < len(words) {
		startMS := toMS(words[i].Start)
		endMS := toMS(words[i].End)
		chars := 0
		var parts []string

		j := i
		for j < len(words) {
			w := words[j]
			cost := len(w.Word) + 1
			if len(parts) > 0 {
				wEndMS := toMS(w.End)
				if wEndMS-startMS > maxDurMS ||
					chars+cost > opts.MaxChars ||
					len(parts) == opts.MaxWords {
					break
				}
			}
			parts = append(parts, w.Word)
			chars += cost
			endMS = toMS(w.End)
			j++
		}

		cues = append(cues, Cue{
			Index:   len(cues) + 1,
			StartMS: startMS,
			EndMS:   endMS,
			Text:    strings.Join(parts, " "),
		})
		i = j
	}
	return cues
}

// FromSegments emits one cue per timed segment.
func FromSegments(segments []asr.Segment) []Cue {
	cues := make([]Cue, 0, len(segments))
	for _, seg := range segments {
		cues = append(cues, Cue{
			Index:   len(cues) + 1,
			StartMS: toMS(seg.Start),
			EndMS:   toMS(seg.End),
			Text:    seg.Text,
		})
	}
	return cues
}

// Proportional distributes totalSeconds across the sentences of text in
// proportion to their character counts, laying cues end to end from 0.
func Proportional(text string, totalSeconds float64) []Cue {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	totalChars := 0
	for _, s := range sentences {
		totalChars += len([]rune(s))
	}
	if totalChars == 0 {
		return nil
	}

	// Cue boundaries come from the cumulative character prefix so the last
	// cue ends exactly at totalSeconds.
	cues := make([]Cue, 0, len(sentences))
	prefix := 0
	prevMS := 0
	for _, s := range sentences {
		prefix += len([]rune(s))
		endMS := toMS(totalSeconds * float64(prefix) / float64(totalChars))
		cues = append(cues, Cue{
			Index:   len(cues) + 1,
			StartMS: prevMS,
			EndMS:   endMS,
			Text:    s,
		})
		prevMS = endMS
	}
	return cues
}

// splitSentences splits after each of [.!?] when followed by whitespace,
// keeping the terminator with the sentence. Empty pieces are dropped.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Render serializes cues as an SRT document: LF line endings, blank line
// between cues.
func Render(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n",
			cue.Index, Timestamp(cue.StartMS), Timestamp(cue.EndMS), cue.Text)
	}
	return b.String()
}

// Timestamp formats milliseconds as HH:MM:SS,mmm.
func Timestamp(ms int) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// toMS floor-truncates seconds to integer milliseconds, matching the SRT
// formatting rule ms = floor((t - floor(t)) * 1000).
func toMS(sec float64) int {
	if sec <= 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0
	}
	return int(math.Floor(sec * 1000))
}
