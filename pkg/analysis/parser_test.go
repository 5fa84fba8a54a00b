package analysis

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

func plainSegment(id, text string) transcript.Segment {
	return transcript.Segment{SourceID: id, Text: text, WordCount: len(strings.Fields(text))}
}

func timedSegment() transcript.Segment {
	subs := []transcript.SubSegment{
		{Text: "We arrived at noon.", Start: 0, End: 5 * time.Second},
		{Text: "I saw a red car leaving.", Start: 5 * time.Second, End: 9 * time.Second},
		{Text: "Then it drove off.", Start: 9 * time.Second, End: 12 * time.Second},
	}
	return transcript.Segment{
		SourceID:    "timed.wav",
		Text:        "We arrived at noon. I saw a red car leaving. Then it drove off.",
		WordCount:   14,
		SubSegments: subs,
	}
}

func TestParse_StructuredRelevant(t *testing.T) {
	seg := plainSegment("a.mp3", "We were outside. I saw a red car leaving the lot around nine.")
	raw := "VERDICT: RELEVANT\nQUOTE: \"I saw a red car leaving\"\nWHY: The speaker describes a red car leaving the scene."

	v := Parse(raw, seg)

	assert.True(t, v.IsRelevant)
	assert.Greater(t, v.Score, 0.0)
	assert.LessOrEqual(t, v.Score, 1.0)
	require.Len(t, v.Evidence, 1)
	ev := v.Evidence[0]
	assert.Equal(t, "I saw a red car leaving", ev.QuotedText)
	assert.Equal(t, "The speaker describes a red car leaving the scene.", ev.Explanation)
	assert.Equal(t, "a.mp3", ev.SourceSegmentID)
	assert.Equal(t, ConfidenceLow, ev.Confidence)
}

func TestParse_StructuredNotRelevant(t *testing.T) {
	seg := plainSegment("b.mp3", "We talked about dinner plans.")

	tests := []string{
		"VERDICT: NOT RELEVANT\nThe recording does not mention any vehicles.",
		"**Relevant:** no",
		"VERDICT: NOT RELEVANT\nQUOTE: \"talked about dinner plans\"",
	}
	for _, raw := range tests {
		v := Parse(raw, seg)
		assert.False(t, v.IsRelevant, raw)
		assert.Zero(t, v.Score, raw)
		assert.Empty(t, v.Evidence, raw)
	}
}

func TestStructuredVerdict_WholeWords(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"VERDICT: RELEVANT", 1},
		{"VERDICT: Partially relevant", 1},
		{"**Relevant:** yes.", 1},
		{"Verdict: \"true\"", 1},
		{"VERDICT: NOT RELEVANT", -1},
		{"Relevant: no", -1},
		{"Verdict: irrelevant", -1},
		{"Verdict: None", -1},
		{"Verdict: Notable mention of a car", 0},
		{"Verdict: Nonetheless relevant", 0},
		{"Verdict: Normally quiet", 0},
		{"Verdict: Yesterday evening", 0},
		{"Verdict: Truly odd", 0},
		{"Verdict: ...", 0},
		{"no verdict line here", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, structuredVerdict(tt.raw), tt.raw)
	}
}

func TestParse_VerdictPrefixWordIsNotAVerdict(t *testing.T) {
	seg := plainSegment("a.mp3", "Well, I saw a red car leaving the lot at noon.")

	v := Parse("Verdict: Notable. The speaker mentions it: \"I saw a red car leaving\".", seg)
	assert.True(t, v.IsRelevant)
	assert.Greater(t, v.Score, 0.0)
	require.Len(t, v.Evidence, 1)
	assert.Equal(t, "I saw a red car leaving", v.Evidence[0].QuotedText)
}

func TestParse_NoPositiveMarker(t *testing.T) {
	seg := plainSegment("c.mp3", "Some words were spoken.")

	tests := []string{
		"",
		"   \n\t",
		"The weather was discussed at length.",
		"This is not relevant to the case.",
		"Nothing relevant here.",
		"}{][",
		`"""""`,
	}
	for _, raw := range tests {
		v := Parse(raw, seg)
		assert.False(t, v.IsRelevant, "raw=%q", raw)
		assert.Zero(t, v.Score, "raw=%q", raw)
		assert.Empty(t, v.Evidence, "raw=%q", raw)
	}
}

func TestParse_NeverPanics(t *testing.T) {
	inputs := []string{
		"\x00\x01\x02",
		"QUOTE:",
		"QUOTE: \"\"",
		"VERDICT:",
		"TIME: 99:99\nQUOTE: \"a b\"\nTIME: 12:34:56",
		"“unterminated curly quote",
		string([]byte{0xff, 0xfe, 0xfd}),
		"yes " + string(make([]byte, 4096)),
	}
	segs := []transcript.Segment{{}, timedSegment(), plainSegment("x", "a b")}

	for _, raw := range inputs {
		for _, seg := range segs {
			assert.NotPanics(t, func() { Parse(raw, seg) }, "raw=%q", raw)
		}
	}
}

func TestParse_QuoteExtractionFallback(t *testing.T) {
	seg := plainSegment("d.mp3", "Later that night the red car was parked outside the shop.")
	raw := `Yes, the speaker mentions "the red car was parked outside" which is important.`

	v := Parse(raw, seg)

	assert.True(t, v.IsRelevant)
	require.Len(t, v.Evidence, 1)
	assert.Equal(t, "the red car was parked outside", v.Evidence[0].QuotedText)
	assert.Contains(t, v.Evidence[0].Explanation, "speaker mentions")
}

func TestParse_CurlyQuotes(t *testing.T) {
	seg := plainSegment("e.mp3", "I saw a red car leaving the lot.")
	raw := "Yes. The recording contains “I saw a red car leaving” which relates to the case."

	v := Parse(raw, seg)

	assert.True(t, v.IsRelevant)
	require.Len(t, v.Evidence, 1)
	assert.Equal(t, "I saw a red car leaving", v.Evidence[0].QuotedText)
}

func TestParse_SingleWordQuoteIgnored(t *testing.T) {
	seg := plainSegment("f.mp3", "There was a car.")
	v := Parse(`Yes, it mentions "car".`, seg)

	assert.True(t, v.IsRelevant)
	assert.Empty(t, v.Evidence)
}

func TestParse_DuplicateQuotesRemoved(t *testing.T) {
	seg := plainSegment("g.mp3", "I saw a red car leaving.")
	raw := "VERDICT: RELEVANT\nQUOTE: \"I saw a red car leaving\"\nQUOTE: \"i saw a RED car leaving.\""

	v := Parse(raw, seg)

	require.Len(t, v.Evidence, 1)
}

func TestParse_NegativeMasksPositive(t *testing.T) {
	positives, negatives := countIndicators("The recording is not relevant and does not contain anything.")
	assert.Equal(t, 0, positives)
	assert.Equal(t, 2, negatives)

	positives, negatives = countIndicators("Yes, it mentions the car and shows intent.")
	assert.Equal(t, 3, positives)
	assert.Equal(t, 0, negatives)

	// "no" inside other words is not a negative marker.
	_, negatives = countIndicators("I know nothing about notes.")
	assert.Equal(t, 0, negatives)
}

func TestParse_ScoreBounded(t *testing.T) {
	seg := plainSegment("h.mp3", "a b c d e f")
	raw := "VERDICT: RELEVANT. Yes, relevant, contains, mentions, discusses, important, significant, evidence, supports."

	v := Parse(raw, seg)

	assert.True(t, v.IsRelevant)
	assert.Greater(t, v.Score, 0.5)
	assert.Less(t, v.Score, 1.0)
}

func TestParse_HighConfidenceWithinSubSegment(t *testing.T) {
	seg := timedSegment()
	raw := "VERDICT: RELEVANT\nQUOTE: \"saw a red car\"\nWHY: vehicle"

	v := Parse(raw, seg)

	require.Len(t, v.Evidence, 1)
	ev := v.Evidence[0]
	assert.Equal(t, ConfidenceHigh, ev.Confidence)
	assert.GreaterOrEqual(t, ev.Start, 5*time.Second)
	assert.LessOrEqual(t, ev.End, 9*time.Second)
}

func TestParse_TimeHintFallback(t *testing.T) {
	seg := plainSegment("i.mp3", "I saw a red car leaving.")
	raw := "VERDICT: RELEVANT\nQUOTE: \"purple elephant dancing slowly\"\nWHY: odd\nTIME: 01:30"

	v := Parse(raw, seg)

	require.Len(t, v.Evidence, 1)
	assert.Equal(t, ConfidenceLow, v.Evidence[0].Confidence)
	assert.Equal(t, 90*time.Second, v.Evidence[0].Start)
}

func TestLocateQuote(t *testing.T) {
	seg := timedSegment()

	t.Run("single utterance", func(t *testing.T) {
		s := locateQuote("I SAW A RED CAR", seg, nil)
		assert.Equal(t, ConfidenceHigh, s.confidence)
		assert.Equal(t, 5*time.Second, s.start)
		assert.Equal(t, 9*time.Second, s.end)
	})

	t.Run("across utterances", func(t *testing.T) {
		s := locateQuote("red car leaving. Then it drove", seg, nil)
		assert.Equal(t, ConfidenceHigh, s.confidence)
		assert.Equal(t, 5*time.Second, s.start)
		assert.Equal(t, 12*time.Second, s.end)
	})

	t.Run("fuzzy", func(t *testing.T) {
		s := locateQuote("I saw a red cat leaving", seg, nil)
		assert.Equal(t, ConfidenceHigh, s.confidence)
		assert.Equal(t, 5*time.Second, s.start)
		assert.Equal(t, 9*time.Second, s.end)
	})

	t.Run("position estimate", func(t *testing.T) {
		plain := plainSegment("p", "one two three four five six seven eight nine ten")
		s := locateQuote("six seven", plain, nil)
		assert.Equal(t, ConfidenceLow, s.confidence)
		assert.Equal(t, 1*time.Second, s.start)
		assert.LessOrEqual(t, s.end, 4*time.Second)
		assert.GreaterOrEqual(t, s.end, s.start)
	})

	t.Run("not found", func(t *testing.T) {
		s := locateQuote("nothing like this appears", seg, nil)
		assert.Equal(t, ConfidenceNone, s.confidence)
	})

	t.Run("empty", func(t *testing.T) {
		s := locateQuote("...", seg, nil)
		assert.Equal(t, ConfidenceNone, s.confidence)
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "i saw a red car", normalize("  I saw, a RED car!  "))
	assert.Equal(t, "don't stop", normalize("Don't   stop."))
	assert.Equal(t, "", normalize("?!"))
}
