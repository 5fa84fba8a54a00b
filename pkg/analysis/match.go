package analysis

import (
	"strings"
	"time"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/cases"

	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

const (
	// WordsPerSecond is the assumed speaking rate for position-based estimates.
	WordsPerSecond = 2.5

	// FuzzyMatchThreshold is the minimum similarity ratio for a near-verbatim quote.
	FuzzyMatchThreshold = 0.85

	// maxJoinedSubSegments bounds how many consecutive utterances one quote may span.
	maxJoinedSubSegments = 3
)

// normalize folds case, turns punctuation into spaces and collapses whitespace.
func normalize(s string) string {
	folded := cases.Fold().String(s)
	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// span is a located time range.
type span struct {
	start, end time.Duration
	confidence Confidence
}

// locateQuote estimates where quote was spoken in seg. hint is a model-cited
// start time, used only when the quote cannot be found in the transcript.
func locateQuote(quote string, seg transcript.Segment, hint *time.Duration) span {
	q := normalize(quote)
	if q == "" {
		return span{confidence: ConfidenceNone}
	}

	if seg.HasTiming() {
		if s, ok := matchSubSegments(q, seg.SubSegments); ok {
			return s
		}
	}

	if s, ok := estimateFromPosition(q, seg); ok {
		return s
	}

	if hint != nil {
		return span{
			start:      *hint,
			end:        *hint + spokenDuration(len(strings.Fields(q))),
			confidence: ConfidenceLow,
		}
	}
	return span{confidence: ConfidenceNone}
}

// matchSubSegments tries containment in one utterance, then in up to
// maxJoinedSubSegments consecutive utterances, then a fuzzy word-window match.
func matchSubSegments(q string, subs []transcript.SubSegment) (span, bool) {
	norm := make([]string, len(subs))
	for i, sub := range subs {
		norm[i] = normalize(sub.Text)
	}

	for i, text := range norm {
		if strings.Contains(text, q) {
			return span{start: subs[i].Start, end: subs[i].End, confidence: ConfidenceHigh}, true
		}
	}

	for width := 2; width <= maxJoinedSubSegments; width++ {
		for i := 0; i+width <= len(subs); i++ {
			joined := strings.Join(norm[i:i+width], " ")
			if strings.Contains(joined, q) {
				return span{start: subs[i].Start, end: subs[i+width-1].End, confidence: ConfidenceHigh}, true
			}
		}
	}

	qWords := strings.Fields(q)
	best, bestFrom, bestTo := 0.0, -1, -1
	for width := 1; width <= maxJoinedSubSegments; width++ {
		for i := 0; i+width <= len(subs); i++ {
			words := strings.Fields(strings.Join(norm[i:i+width], " "))
			if ratio := bestWindowRatio(qWords, words); ratio > best {
				best, bestFrom, bestTo = ratio, i, i+width-1
			}
		}
	}
	if best >= FuzzyMatchThreshold {
		return span{start: subs[bestFrom].Start, end: subs[bestTo].End, confidence: ConfidenceHigh}, true
	}
	return span{}, false
}

// bestWindowRatio slides a window the size of quote over words and returns
// the highest Levenshtein similarity ratio found.
func bestWindowRatio(quote, words []string) float64 {
	if len(quote) == 0 || len(words) < len(quote) {
		return 0
	}
	q := []rune(strings.Join(quote, " "))
	best := 0.0
	for i := 0; i+len(quote) <= len(words); i++ {
		w := []rune(strings.Join(words[i:i+len(quote)], " "))
		if r := levenshtein.RatioForStrings(q, w, levenshtein.DefaultOptions); r > best {
			best = r
		}
	}
	return best
}

// estimateFromPosition maps the quote's character offset in the segment text
// onto the segment's time span. With utterance timing the span is the
// utterances' range; otherwise it is the word count at WordsPerSecond.
// These estimates are always low confidence.
func estimateFromPosition(q string, seg transcript.Segment) (span, bool) {
	text := normalize(seg.Text)
	if text == "" {
		return span{}, false
	}

	offset := strings.Index(text, q)
	if offset < 0 {
		offset = fuzzyOffset(q, text)
		if offset < 0 {
			return span{}, false
		}
	}

	var from, total time.Duration
	if seg.HasTiming() {
		from = seg.SubSegments[0].Start
		total = seg.Duration() - from
	} else {
		total = spokenDuration(len(strings.Fields(text)))
	}

	ratio := float64(offset) / float64(len(text))
	start := from + time.Duration(ratio*float64(total))
	end := start + spokenDuration(len(strings.Fields(q)))
	if limit := from + total; end > limit {
		end = limit
	}
	if end < start {
		end = start
	}
	return span{start: start.Truncate(time.Second), end: end.Truncate(time.Second), confidence: ConfidenceLow}, true
}

// fuzzyOffset returns the character offset of the best fuzzy word-window
// match of q in text, or -1 below FuzzyMatchThreshold.
func fuzzyOffset(q, text string) int {
	qWords := strings.Fields(q)
	words := strings.Fields(text)
	if len(qWords) == 0 || len(words) < len(qWords) {
		return -1
	}
	qr := []rune(q)
	best, bestIdx := 0.0, -1
	for i := 0; i+len(qWords) <= len(words); i++ {
		w := []rune(strings.Join(words[i:i+len(qWords)], " "))
		if r := levenshtein.RatioForStrings(qr, w, levenshtein.DefaultOptions); r > best {
			best, bestIdx = r, i
		}
	}
	if best < FuzzyMatchThreshold {
		return -1
	}
	// Offset of word bestIdx in the single-spaced normalized text.
	return len(strings.Join(words[:bestIdx], " ")) + boolToInt(bestIdx > 0)
}

func spokenDuration(words int) time.Duration {
	return time.Duration(float64(words) / WordsPerSecond * float64(time.Second))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
