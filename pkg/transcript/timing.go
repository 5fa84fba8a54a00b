package transcript

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Timed line regular expressions
var (
	// Matches bracketed range lines: [01:02 - 01:09] text
	// or: [00:01:02.500 --> 00:01:09.000] text
	bracketRangeRegex = regexp.MustCompile(`^\[\s*(\d{1,2}(?::\d{2}){1,2}(?:[.,]\d{1,3})?)\s*(?:-->|-|–)\s*(\d{1,2}(?::\d{2}){1,2}(?:[.,]\d{1,3})?)\s*\]\s*(.*)$`)

	// Matches WebVTT/SRT cue timing lines: 00:00:05.579 --> 00:00:06.858
	cueTimingRegex = regexp.MustCompile(`^(\d{1,2}(?::\d{2}){1,2}[.,]\d{3})\s+-->\s+(\d{1,2}(?::\d{2}){1,2}[.,]\d{3})`)

	// Matches numeric cue identifiers that precede a cue timing line.
	cueIDRegex = regexp.MustCompile(`^\d+$`)
)

// extractTiming pulls timed utterances out of a plain-text block.
// It returns the block text with timing markup removed, plus the utterances.
// Blocks without any timing markup come back unchanged with no utterances.
func extractTiming(block string) (string, []SubSegment) {
	lines := strings.Split(block, "\n")

	var (
		subs    []SubSegment
		text    []string
		current *SubSegment
	)

	flush := func() {
		if current != nil && current.Text != "" {
			subs = append(subs, *current)
		}
		current = nil
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if line == "" {
			flush()
			continue
		}
		if line == "WEBVTT" {
			continue
		}

		if m := bracketRangeRegex.FindStringSubmatch(line); m != nil {
			flush()
			start, okStart := parseClock(m[1])
			end, okEnd := parseClock(m[2])
			content := strings.TrimSpace(m[3])
			if okStart && okEnd && content != "" {
				subs = append(subs, SubSegment{Text: content, Start: start, End: end})
			}
			if content != "" {
				text = append(text, content)
			}
			continue
		}

		// A numeric cue id only counts as markup when a cue timing line follows.
		if cueIDRegex.MatchString(line) && i+1 < len(lines) && cueTimingRegex.MatchString(strings.TrimSpace(lines[i+1])) {
			continue
		}

		if m := cueTimingRegex.FindStringSubmatch(line); m != nil {
			flush()
			start, okStart := parseClock(m[1])
			end, okEnd := parseClock(m[2])
			if okStart && okEnd {
				current = &SubSegment{Start: start, End: end}
			}
			continue
		}

		text = append(text, line)
		if current != nil {
			if current.Text != "" {
				current.Text += " "
			}
			current.Text += line
		}
	}
	flush()

	if len(subs) == 0 {
		return block, nil
	}
	return strings.Join(text, "\n"), subs
}

// parseClock parses MM:SS, HH:MM:SS, and either with a .mmm or ,mmm fraction.
func parseClock(ts string) (time.Duration, bool) {
	ts = strings.Replace(ts, ",", ".", 1)

	var fraction time.Duration
	if dot := strings.IndexByte(ts, '.'); dot >= 0 {
		frac := ts[dot+1:]
		ts = ts[:dot]
		for len(frac) < 3 {
			frac += "0"
		}
		ms, err := strconv.Atoi(frac[:3])
		if err != nil {
			return 0, false
		}
		fraction = time.Duration(ms) * time.Millisecond
	}

	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var total time.Duration
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		total = total*60 + time.Duration(n)
	}
	return total*time.Second + fraction, true
}
