package asr

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize maps a raw provider payload into the canonical transcript. It is
// a total function: every input produces a valid transcript with finite,
// non-negative times. Dispatch is structural, tried in order:
//
//  1. nil
//  2. plain string
//  3. {text, segments}            (whisper verbose style)
//  4. {segments} only             (generic segmented style)
//  5. {results: [{alternatives}]} (google speech style)
//  6. anything else → stringified
func Normalize(payload any) *Transcript {
	if payload == nil {
		return &Transcript{Text: "", Segments: []Segment{}}
	}

	if s, ok := payload.(string); ok {
		return &Transcript{Text: s, Segments: []Segment{}}
	}

	obj, ok := asMap(payload)
	if !ok {
		return &Transcript{Text: stringify(payload), Segments: []Segment{}}
	}

	text, hasText := obj["text"].(string)
	segs, hasSegs := obj["segments"].([]any)
	results, hasResults := obj["results"].([]any)

	switch {
	case hasText && hasSegs:
		return normalizeWithText(text, segs, obj)
	case hasSegs:
		return normalizeSegmentsOnly(segs)
	case hasResults:
		return normalizeGoogleResults(results)
	default:
		return &Transcript{Text: stringify(payload), Segments: []Segment{}}
	}
}

// normalizeWithText handles the {text, segments} shape. Segment fields are
// copied with zero fallbacks; existing word arrays are preserved. Top-level
// word arrays (whisper puts words beside segments) are attached to the
// matching segments by time range.
func normalizeWithText(text string, segs []any, obj map[string]any) *Transcript {
	out := &Transcript{Text: text, Segments: make([]Segment, 0, len(segs))}

	for _, raw := range segs {
		seg, ok := asMap(raw)
		if !ok {
			continue
		}
		s := Segment{
			Text:  stringField(seg, "text"),
			Start: toSeconds(seg["start"]),
			End:   toSeconds(seg["end"]),
		}
		if words, ok := seg["words"].([]any); ok {
			s.Words = normalizeWords(words)
		}
		out.Segments = append(out.Segments, s)
	}

	if topWords, ok := obj["words"].([]any); ok && len(topWords) > 0 {
		attachWords(out, normalizeWords(topWords))
	}

	return out
}

// normalizeSegmentsOnly handles the {segments} shape with field-name
// fallbacks, deriving the full text by joining segment texts.
func normalizeSegmentsOnly(segs []any) *Transcript {
	out := &Transcript{Segments: make([]Segment, 0, len(segs))}
	var parts []string

	for _, raw := range segs {
		seg, ok := asMap(raw)
		if !ok {
			continue
		}

		text := firstString(seg, "text", "transcript")
		start := firstNumber(seg, "start", "begin", "seek")

		var end float64
		if v, ok := lookup(seg, "end"); ok {
			end = toSeconds(v)
		} else if v, ok := lookup(seg, "duration"); ok {
			end = start + toSeconds(v)
		}

		s := Segment{Text: text, Start: start, End: end}
		if words, ok := seg["words"].([]any); ok {
			s.Words = normalizeWords(words)
		}
		out.Segments = append(out.Segments, s)
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}

	out.Text = strings.Join(parts, " ")
	return out
}

// normalizeGoogleResults handles {results: [{alternatives: [{transcript,
// words?}]}]}. First alternatives are concatenated; word timings become one
// segment per word so downstream code uniformly sees timed segments.
func normalizeGoogleResults(results []any) *Transcript {
	out := &Transcript{Segments: []Segment{}}
	var parts []string

	for _, raw := range results {
		res, ok := asMap(raw)
		if !ok {
			continue
		}
		alts, ok := res["alternatives"].([]any)
		if !ok || len(alts) == 0 {
			continue
		}
		alt, ok := asMap(alts[0])
		if !ok {
			continue
		}

		if transcript := stringField(alt, "transcript"); transcript != "" {
			parts = append(parts, transcript)
		}

		words, ok := alt["words"].([]any)
		if !ok {
			continue
		}
		for _, wr := range words {
			wm, ok := asMap(wr)
			if !ok {
				continue
			}
			w := Word{
				Word:  firstString(wm, "word", "text", "token"),
				Start: googleTime(wm, "startTime", "start"),
				End:   googleTime(wm, "endTime", "end"),
			}
			out.Segments = append(out.Segments, Segment{
				Text:  w.Word,
				Start: w.Start,
				End:   w.End,
				Words: []Word{w},
			})
		}
	}

	out.Text = strings.Join(parts, " ")
	return out
}

func normalizeWords(raw []any) []Word {
	words := make([]Word, 0, len(raw))
	for _, wr := range raw {
		wm, ok := asMap(wr)
		if !ok {
			continue
		}
		words = append(words, Word{
			Word:  firstString(wm, "word", "text", "token"),
			Start: firstNumber(wm, "start", "startTime"),
			End:   firstNumber(wm, "end", "endTime"),
		})
	}
	return words
}

// attachWords distributes a flat word list onto segments by time range; words
// past the last segment end land on the final segment.
func attachWords(t *Transcript, words []Word) {
	if len(t.Segments) == 0 {
		return
	}
	for _, w := range words {
		idx := len(t.Segments) - 1
		for i, seg := range t.Segments {
			if w.Start < seg.End || i == len(t.Segments)-1 {
				idx = i
				break
			}
		}
		t.Segments[idx].Words = append(t.Segments[idx].Words, w)
	}
}

// googleTime reads a time field that may be a number of seconds or a
// {seconds, nanos} object.
func googleTime(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		v, ok := lookup(m, key)
		if !ok {
			continue
		}
		if obj, ok := asMap(v); ok {
			return toSeconds(obj["seconds"]) + toSeconds(obj["nanos"])/1e9
		}
		return toSeconds(v)
	}
	return 0
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	// Typed provider structs round-trip through JSON into a generic map.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return m, true
}

func lookup(m map[string]any, key string) (any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := lookup(m, key); ok {
			return toSeconds(v)
		}
	}
	return 0
}

// toSeconds coerces any numeric-ish value to a finite float64, defaulting
// to 0 for anything missing, non-numeric or non-finite.
func toSeconds(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		f, _ = n.Float64()
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func stringify(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
