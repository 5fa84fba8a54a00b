// Package transcript loads speech-to-text transcripts and splits them into
// one Segment per source recording.
package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Fallback source names for text that does not sit under a recording boundary.
const (
	UnknownRecording   = "unknown_recording"
	CombinedTranscript = "combined_transcript"
)

// SubSegment is one timed utterance inside a recording.
type SubSegment struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Segment is the transcribed content of one source recording.
// Segments are values; the loader never shares SubSegments backing arrays
// between segments.
type Segment struct {
	SourceID    string       `json:"source_id"`
	Index       int          `json:"index"`
	Text        string       `json:"text"`
	WordCount   int          `json:"word_count"`
	SubSegments []SubSegment `json:"sub_segments,omitempty"`
}

// HasTiming reports whether the segment carries per-utterance timing.
func (s Segment) HasTiming() bool {
	return len(s.SubSegments) > 0
}

// Duration returns the end of the last timed utterance, or zero when untimed.
func (s Segment) Duration() time.Duration {
	var end time.Duration
	for _, sub := range s.SubSegments {
		if sub.End > end {
			end = sub.End
		}
	}
	return end
}

// newSegment builds a segment and computes its derived fields once.
func newSegment(sourceID string, index int, text string, subs []SubSegment) Segment {
	text = strings.TrimSpace(text)
	seg := Segment{
		SourceID:  sourceID,
		Index:     index,
		Text:      text,
		WordCount: len(strings.Fields(text)),
	}
	if len(subs) > 0 {
		seg.SubSegments = make([]SubSegment, len(subs))
		copy(seg.SubSegments, subs)
	}
	return seg
}

// FormatTimestamp renders d as MM:SS, or HH:MM:SS when it reaches an hour.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// uniqueNames suffixes repeated source names with " (2)", " (3)" and so on.
type uniqueNames map[string]int

func (u uniqueNames) next(name string) string {
	u[name]++
	n := u[name]
	if n == 1 {
		return name
	}
	candidate := fmt.Sprintf("%s (%d)", name, n)
	for u[candidate] > 0 {
		n++
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
	u[candidate]++
	return candidate
}
