package analysis

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

// PositiveIndicators are phrases that signal a relevant recording.
var PositiveIndicators = []string{
	"yes", "relevant", "contains", "mentions", "discusses", "refers to",
	"relates to", "quote:", "important", "significant", "shows",
	"indicates", "evidence", "supports",
}

// NegativeIndicators are phrases that signal an irrelevant recording.
// They are matched before positives and masked, so "not relevant" never
// counts toward "relevant".
var NegativeIndicators = []string{
	"not relevant", "does not contain", "no mention", "not related",
	"nothing relevant", "no relevant", "unrelated", "irrelevant",
	"no evidence", "no",
}

// Weights applied to the raw score.
const (
	structuredVerdictWeight = 3
	quoteWeight             = 1
	scoreHalfPoint          = 4.0
	minQuoteWords           = 2
)

// Response markup regular expressions
var (
	// Matches verdict lines: VERDICT: RELEVANT, **Relevant:** yes
	verdictLineRegex = regexp.MustCompile(`(?im)^[\s*#>-]*(?:verdict|relevant|relevance)[\s*]*[:\-][\s*]*(.+?)\s*$`)

	// Matches quote lines: QUOTE: "..."
	quoteLineRegex = regexp.MustCompile(`(?im)^[\s*#>-]*(?:\d+[.)]\s*)?quote[\s*]*[:\-][\s*]*(.+?)\s*$`)

	// Matches explanation lines: WHY: ...
	whyLineRegex = regexp.MustCompile(`(?im)^[\s*#>-]*(?:why|reason|explanation)[\s*]*[:\-][\s*]*(.+?)\s*$`)

	// Matches model-cited times: TIME: 01:23
	timeLineRegex = regexp.MustCompile(`(?im)^[\s*#>-]*(?:time|timestamp)[\s*]*[:\-][\s*]*~?\s*(\d{1,2}:\d{2}(?::\d{2})?)`)

	// Matches quoted spans in straight or curly double quotes.
	quotedSpanRegex = regexp.MustCompile(`"([^"\n]+)"|“([^”\n]+)”`)
)

// candidate is a quote found in a response before timestamp estimation.
type candidate struct {
	quote       string
	explanation string
	timeHint    *time.Duration
}

// Parse converts a raw model response into a Verdict for seg. It never
// fails: unusable input yields a not-relevant verdict with no evidence.
func Parse(raw string, seg transcript.Segment) (v Verdict) {
	defer func() {
		if recover() != nil {
			v = Verdict{}
		}
	}()

	if strings.TrimSpace(raw) == "" {
		return Verdict{}
	}

	structured := structuredVerdict(raw)
	candidates := structuredCandidates(raw)
	if len(candidates) == 0 {
		candidates = quotedCandidates(raw)
	}

	positives, negatives := countIndicators(maskQuotes(raw))
	switch structured {
	case 1:
		positives += structuredVerdictWeight
	case -1:
		negatives += structuredVerdictWeight
	}

	raw2 := positives - negatives + quoteWeight*len(candidates)

	if structured != 0 {
		v.IsRelevant = structured > 0
	} else {
		v.IsRelevant = positives > 0 && raw2 > 0
	}

	if positives > 0 && raw2 > 0 {
		v.Score = float64(raw2) / (float64(raw2) + scoreHalfPoint)
	} else if structured > 0 {
		v.Score = 1 / (1 + scoreHalfPoint)
	}
	if !v.IsRelevant {
		v.Score = 0
		return v
	}

	v.Evidence = buildEvidence(candidates, seg)
	return v
}

// Verdict words are compared against the first word of a verdict line, so
// "Notable" or "Yesterday" never read as a verdict.
var (
	negativeVerdictWords = map[string]bool{"not": true, "no": true, "none": true, "irrelevant": true, "false": true}
	positiveVerdictWords = map[string]bool{"relevant": true, "yes": true, "partially": true, "true": true}
)

// structuredVerdict returns 1 for an explicit relevant verdict, -1 for an
// explicit not-relevant verdict, and 0 when none is present.
func structuredVerdict(raw string) int {
	m := verdictLineRegex.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	words := strings.FieldsFunc(cases.Fold().String(m[1]), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return 0
	}
	switch first := words[0]; {
	case negativeVerdictWords[first]:
		return -1
	case positiveVerdictWords[first]:
		return 1
	}
	return 0
}

// structuredCandidates reads QUOTE/WHY/TIME lines in order.
func structuredCandidates(raw string) []candidate {
	var out []candidate
	for _, line := range strings.Split(raw, "\n") {
		if m := quoteLineRegex.FindStringSubmatch(line); m != nil {
			q := trimQuote(m[1])
			if wordCount(q) >= 1 {
				out = append(out, candidate{quote: q})
			}
			continue
		}
		if len(out) == 0 {
			continue
		}
		last := &out[len(out)-1]
		if m := whyLineRegex.FindStringSubmatch(line); m != nil && last.explanation == "" {
			last.explanation = strings.TrimSpace(m[1])
			continue
		}
		if m := timeLineRegex.FindStringSubmatch(line); m != nil && last.timeHint == nil {
			if d, ok := parseCitedTime(m[1]); ok {
				last.timeHint = &d
			}
		}
	}
	return out
}

// quotedCandidates extracts double-quoted spans of at least minQuoteWords
// words and pairs each with its surrounding sentence.
func quotedCandidates(raw string) []candidate {
	var out []candidate
	for _, loc := range quotedSpanRegex.FindAllStringSubmatchIndex(raw, -1) {
		start, end := loc[2], loc[3]
		if start < 0 {
			start, end = loc[4], loc[5]
		}
		q := strings.TrimSpace(raw[start:end])
		if wordCount(q) < minQuoteWords {
			continue
		}
		out = append(out, candidate{
			quote:       q,
			explanation: surroundingSentence(raw, loc[0], loc[1]),
		})
	}
	return out
}

// surroundingSentence returns the sentence holding raw[start:end]. When the
// quote stands alone on its line, the next non-empty line is used instead.
func surroundingSentence(raw string, start, end int) string {
	from := 0
	if i := strings.LastIndexAny(raw[:start], ".!?\n"); i >= 0 {
		from = i + 1
	}
	to := len(raw)
	if i := strings.IndexAny(raw[end:], ".!?\n"); i >= 0 {
		to = end + i + 1
	}
	sentence := strings.TrimSpace(raw[from:to])

	rest := strings.TrimSpace(raw[from:start] + raw[end:to])
	if strings.Trim(rest, " .,:;!?-*") != "" {
		return sentence
	}
	for _, line := range strings.Split(raw[to:], "\n") {
		if line = strings.TrimSpace(line); line != "" && !quotedSpanRegex.MatchString(line) {
			return line
		}
	}
	return sentence
}

// countIndicators counts distinct indicator phrases present in text.
func countIndicators(text string) (positives, negatives int) {
	folded := " " + cases.Fold().String(text) + " "

	for _, phrase := range NegativeIndicators {
		var found bool
		folded, found = maskPhrase(folded, phrase)
		if found {
			negatives++
		}
	}
	for _, phrase := range PositiveIndicators {
		if _, found := maskPhrase(folded, phrase); found {
			positives++
		}
	}
	return positives, negatives
}

// maskPhrase blanks every whole-word occurrence of phrase in s.
func maskPhrase(s, phrase string) (string, bool) {
	found := false
	var b strings.Builder
	i := 0
	for {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			break
		}
		j += i
		k := j + len(phrase)
		if isBoundary(s, j-1) && (isBoundary(s, k) || !isWordByte(phrase[len(phrase)-1])) {
			found = true
			b.WriteString(s[i:j])
			b.WriteString(strings.Repeat(" ", len(phrase)))
		} else {
			b.WriteString(s[i:k])
		}
		i = k
	}
	b.WriteString(s[i:])
	return b.String(), found
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	return !isWordByte(s[i])
}

func isWordByte(c byte) bool {
	return c == '_' || c == '\'' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// maskQuotes removes quoted transcript text so words spoken in the recording
// do not count as the model's own judgment.
func maskQuotes(raw string) string {
	raw = quoteLineRegex.ReplaceAllString(raw, "quote:")
	return quotedSpanRegex.ReplaceAllString(raw, " ")
}

func buildEvidence(candidates []candidate, seg transcript.Segment) []EvidenceSpan {
	seen := make(map[string]bool, len(candidates))
	evidence := make([]EvidenceSpan, 0, len(candidates))
	for _, c := range candidates {
		key := normalize(c.quote)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		loc := locateQuote(c.quote, seg, c.timeHint)
		evidence = append(evidence, EvidenceSpan{
			QuotedText:      c.quote,
			Explanation:     c.explanation,
			Start:           loc.start,
			End:             loc.end,
			SourceSegmentID: seg.SourceID,
			Confidence:      loc.confidence,
		})
	}
	return evidence
}

func trimQuote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "“")
	s = strings.TrimSuffix(s, "”")
	return strings.TrimSpace(strings.Trim(s, `"'`))
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func parseCitedTime(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	var total time.Duration
	for _, p := range parts {
		var n int
		for _, r := range p {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second, true
}
