package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Caption parsing for the two interchange formats yt-dlp produces: SRT
// (block-based cues, comma-delimited milliseconds) and WebVTT (line-based
// cues, dot-delimited milliseconds). Both normalize to the same segment
// shape. Malformed individual cues are skipped; they never abort the parse.

var markupTagPattern = regexp.MustCompile(`<[^>]*>`)

// parseSRT splits the input on blank lines into cue blocks. Each block's
// second line holds the "start --> end" pair; text is every line from the
// third onward joined with spaces. Whatever remains after tag-stripping is
// kept, even when empty.
func parseSRT(content string) []TranscriptSegment {
	var segments []TranscriptSegment

	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	for _, block := range strings.Split(strings.TrimSpace(normalized), "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		if !strings.Contains(lines[1], "-->") {
			continue
		}
		start := strings.TrimSpace(strings.SplitN(lines[1], "-->", 2)[0])
		seconds, err := srtSeconds(start)
		if err != nil {
			continue
		}
		segments = append(segments, TranscriptSegment{
			Text:  stripTags(strings.Join(lines[2:], " ")),
			Start: formatTimestamp(seconds),
		})
	}

	return segments
}

// parseVTT scans line by line. Any line containing "-->" begins a cue; its
// text is every following non-blank, non-timestamp line until the next blank
// line or timestamp. Cues whose text is empty after tag-stripping are
// dropped.
func parseVTT(content string) []TranscriptSegment {
	var segments []TranscriptSegment

	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if !strings.Contains(line, "-->") {
			continue
		}
		start := strings.TrimSpace(strings.SplitN(line, "-->", 2)[0])
		seconds, err := vttSeconds(start)
		if err != nil {
			continue
		}

		var parts []string
		for j := i + 1; j < len(lines); j++ {
			text := strings.TrimSpace(lines[j])
			if text == "" || strings.Contains(text, "-->") {
				break
			}
			parts = append(parts, text)
		}

		text := stripTags(strings.Join(parts, " "))
		if text == "" {
			continue
		}
		segments = append(segments, TranscriptSegment{
			Text:  text,
			Start: formatTimestamp(seconds),
		})
	}

	return segments
}

// srtSeconds parses hh:mm:ss,mmm into seconds.
func srtSeconds(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ",")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid srt timestamp %q", value)
	}
	return clockSeconds(parts[0], parts[1], 3)
}

// vttSeconds parses hh:mm:ss.mmm or mm:ss.mmm into seconds.
func vttSeconds(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ".")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid vtt timestamp %q", value)
	}
	return clockSeconds(parts[0], parts[1], 0)
}

// clockSeconds converts a colon-delimited clock plus a millisecond field to
// seconds. wantFields pins the expected clock arity; zero accepts either
// mm:ss or hh:mm:ss.
func clockSeconds(clock, millisField string, wantFields int) (float64, error) {
	fields := strings.Split(clock, ":")
	if wantFields > 0 && len(fields) != wantFields {
		return 0, fmt.Errorf("invalid clock %q", clock)
	}
	if len(fields) != 2 && len(fields) != 3 {
		return 0, fmt.Errorf("invalid clock %q", clock)
	}

	var hours, minutes, seconds int
	var err error
	idx := 0
	if len(fields) == 3 {
		if hours, err = strconv.Atoi(fields[0]); err != nil {
			return 0, fmt.Errorf("invalid clock %q", clock)
		}
		idx = 1
	}
	if minutes, err = strconv.Atoi(fields[idx]); err != nil {
		return 0, fmt.Errorf("invalid clock %q", clock)
	}
	if seconds, err = strconv.Atoi(fields[idx+1]); err != nil {
		return 0, fmt.Errorf("invalid clock %q", clock)
	}
	millis, err := strconv.Atoi(strings.TrimSpace(millisField))
	if err != nil {
		return 0, fmt.Errorf("invalid milliseconds %q", millisField)
	}

	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// formatTimestamp renders seconds as a zero-padded hh:mm:ss timecode.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// stripTags removes inline markup (<i>, <c.color>, timing tags) and
// collapses the remaining whitespace.
func stripTags(text string) string {
	cleaned := markupTagPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(cleaned), " ")
}
