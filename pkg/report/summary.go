package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/c2buck/audio-transcriber/pkg/analysis"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

const (
	rule            = "=================================================="
	resultsHeading  = "ANALYSIS RESULTS:"
	factsHeading    = "CASE FACTS:"
	dateTimeLayout  = "2006-01-02 15:04:05"
	notAnalyzedNote = "Not analyzed (run cancelled before this recording)"
)

// SegmentArtifacts renders one text file per analyzed recording.
// Recordings never attempted get no file.
func SegmentArtifacts(data RunData) []Artifact {
	out := make([]Artifact, 0, len(data.Results))
	used := make(map[string]int, len(data.Results))
	for _, res := range data.Results {
		name := SegmentFileName(res.Segment.SourceID)
		if n := used[name]; n > 0 {
			name = strings.TrimSuffix(name, SegmentSuffix) + "_" + strconv.Itoa(res.Segment.Index) + SegmentSuffix
		}
		used[name]++
		out = append(out, Artifact{Name: name, Content: []byte(renderSegment(data, res))})
	}
	return out
}

func renderSegment(data RunData, res analysis.Result) string {
	var b strings.Builder
	seg := res.Segment

	b.WriteString("AI Analysis Results\n")
	b.WriteString("===================\n")
	fmt.Fprintf(&b, "Recording: %s\n", seg.SourceID)
	fmt.Fprintf(&b, "Analysis Date: %s\n", data.GeneratedAt.Format(dateTimeLayout))
	fmt.Fprintf(&b, "Model Used: %s\n", res.Model)
	fmt.Fprintf(&b, "Processing Time: %.1f seconds\n", res.Metrics.Duration.Seconds())
	fmt.Fprintf(&b, "Segment Index: %d\n", seg.Index)
	fmt.Fprintf(&b, "Word Count: %d\n", seg.WordCount)
	if res.Failed() {
		b.WriteString("Status: Failed\n")
		fmt.Fprintf(&b, "Error: %s\n", res.ErrorMessage())
	} else {
		fmt.Fprintf(&b, "Relevance: %s\n", relevanceLabel(res))
		fmt.Fprintf(&b, "Relevance Score: %.2f\n", res.RelevanceScore)
	}

	fmt.Fprintf(&b, "\n%s\n%s\n", factsHeading, strings.TrimSpace(data.CaseContext))
	fmt.Fprintf(&b, "\nTRANSCRIPT SEGMENT:\n%s\n", seg.Text)

	if !res.Failed() {
		fmt.Fprintf(&b, "\nAI ANALYSIS:\n%s\n", strings.TrimSpace(res.RawResponse))
		b.WriteString("\nEVIDENCE:\n")
		writeEvidence(&b, res)
	}

	b.WriteString("\nPROCESSING METRICS:\n")
	fmt.Fprintf(&b, "- Total Processing Time: %.3fs\n", res.Metrics.Duration.Seconds())
	fmt.Fprintf(&b, "- Output Tokens: %d\n", res.Metrics.TokenCount)
	fmt.Fprintf(&b, "- Prompt Tokens: %d\n", res.Metrics.PromptTokens)
	fmt.Fprintf(&b, "- Response Length: %d characters\n", len(res.RawResponse))
	fmt.Fprintf(&b, "- Response Words: %d words\n", len(strings.Fields(res.RawResponse)))
	return b.String()
}

func writeEvidence(b *strings.Builder, res analysis.Result) {
	if len(res.Evidence) == 0 {
		b.WriteString("No relevant content found\n")
		return
	}
	for _, ev := range res.Evidence {
		b.WriteString(evidenceLine(ev))
		b.WriteString("\n")
	}
}

// Totals are the run-level counts printed at the top of the summary.
type Totals struct {
	Segments       int
	Analyzed       int
	Successful     int
	Failed         int
	NotAttempted   int
	Relevant       int
	Evidence       int
	HighConfidence int
	Seconds        float64
}

// TotalsFor computes the summary totals for results out of total segments.
func TotalsFor(results []analysis.Result, total int) Totals {
	s := analysis.Summarize(results, total)
	return Totals{
		Segments:       total,
		Analyzed:       len(results),
		Successful:     s.Succeeded,
		Failed:         s.Failed,
		NotAttempted:   s.NotAttempted,
		Relevant:       s.Relevant,
		Evidence:       s.Evidence,
		HighConfidence: s.HighConfidence,
		Seconds:        s.Processing.Seconds(),
	}
}

// RenderSummary renders the combined summary: a totals block followed by one
// block per recording in index order.
func RenderSummary(data RunData) string {
	total := len(data.Segments)
	if total < len(data.Results) {
		total = len(data.Results)
	}
	t := TotalsFor(data.Results, total)

	var b strings.Builder
	b.WriteString("AI Review Summary\n")
	b.WriteString("=================\n")
	fmt.Fprintf(&b, "Generated: %s\n", data.GeneratedAt.Format(dateTimeLayout))
	fmt.Fprintf(&b, "Run ID: %s\n", data.RunID)
	fmt.Fprintf(&b, "Model: %s\n", data.Model)
	fmt.Fprintf(&b, "Run State: %s\n", data.State)
	fmt.Fprintf(&b, "Total Segments: %d\n", t.Segments)
	fmt.Fprintf(&b, "Total Segments Analyzed: %d\n", t.Analyzed)
	fmt.Fprintf(&b, "Successful Analyses: %d\n", t.Successful)
	fmt.Fprintf(&b, "Failed Analyses: %d\n", t.Failed)
	fmt.Fprintf(&b, "Not Attempted: %d\n", t.NotAttempted)
	fmt.Fprintf(&b, "Relevant Segments Found: %d\n", t.Relevant)
	fmt.Fprintf(&b, "Total Evidence: %d\n", t.Evidence)
	fmt.Fprintf(&b, "High-Confidence Timestamps: %d\n", t.HighConfidence)
	fmt.Fprintf(&b, "Total Processing Time: %.1f seconds\n", t.Seconds)
	if t.Successful > 0 {
		fmt.Fprintf(&b, "Average Processing Time: %.1f seconds per segment\n", t.Seconds/float64(t.Analyzed))
	}

	fmt.Fprintf(&b, "\n%s\n%s\n", factsHeading, strings.TrimSpace(data.CaseContext))

	b.WriteString("\nEXECUTIVE SUMMARY:\n")
	fmt.Fprintf(&b, "- %d out of %d segments contained relevant content\n", t.Relevant, t.Successful)
	fmt.Fprintf(&b, "- %d evidence quotes, %d with high-confidence timestamps\n", t.Evidence, t.HighConfidence)
	if t.Failed > 0 {
		fmt.Fprintf(&b, "- %d segments could not be analyzed\n", t.Failed)
	}
	if t.NotAttempted > 0 {
		fmt.Fprintf(&b, "- %d segments were not attempted\n", t.NotAttempted)
	}

	b.WriteString("\n" + resultsHeading + "\n")
	for i, seg := range orderedSegments(data) {
		fmt.Fprintf(&b, "\n%s\nSEGMENT %d: %s\n%s\n", rule, i+1, seg.SourceID, rule)

		res, ok := resultFor(data.Results, seg)
		switch {
		case !ok:
			fmt.Fprintf(&b, "Status: %s\n", notAnalyzedNote)
			fmt.Fprintf(&b, "Word Count: %d\n", seg.WordCount)
		case res.Failed():
			b.WriteString("Status: Failed\n")
			fmt.Fprintf(&b, "Error: %s\n", res.ErrorMessage())
			fmt.Fprintf(&b, "Word Count: %d\n", seg.WordCount)
			fmt.Fprintf(&b, "TRANSCRIPT:\n%s\n", seg.Text)
		default:
			b.WriteString("Status: Success\n")
			fmt.Fprintf(&b, "Relevance: %s (Score: %.2f)\n", relevanceLabel(res), res.RelevanceScore)
			fmt.Fprintf(&b, "Processing Time: %.1f seconds\n", res.Metrics.Duration.Seconds())
			fmt.Fprintf(&b, "Model: %s\n", res.Model)
			fmt.Fprintf(&b, "Word Count: %d\n\n", seg.WordCount)
			b.WriteString("EVIDENCE:\n")
			writeEvidence(&b, res)
			fmt.Fprintf(&b, "\nTRANSCRIPT:\n%s\n\n", seg.Text)
			fmt.Fprintf(&b, "AI ANALYSIS:\n%s\n", strings.TrimSpace(res.RawResponse))
		}
	}
	return b.String()
}

// orderedSegments returns every segment of the run in index order, falling
// back to the results' segments when the run's segment list is absent.
func orderedSegments(data RunData) []transcript.Segment {
	if len(data.Segments) >= len(data.Results) {
		return data.Segments
	}
	segs := make([]transcript.Segment, len(data.Results))
	for i, r := range data.Results {
		segs[i] = r.Segment
	}
	return segs
}

func resultFor(results []analysis.Result, seg transcript.Segment) (analysis.Result, bool) {
	for _, r := range results {
		if r.Segment.Index == seg.Index && r.Segment.SourceID == seg.SourceID {
			return r, true
		}
	}
	return analysis.Result{}, false
}

var totalsLineRegex = regexp.MustCompile(`(?m)^([A-Za-z -]+):[ \t]*([0-9]+(?:\.[0-9]+)?)`)

// ParseSummaryTotals reads the totals block back from a rendered summary.
// Only the header up to the first blank line is read, so case facts and
// transcript text can never shadow the totals.
func ParseSummaryTotals(text string) (Totals, error) {
	header := strings.ReplaceAll(text, "\r\n", "\n")
	for _, end := range []string{"\n\n", "\n" + factsHeading, "\n" + resultsHeading} {
		if i := strings.Index(header, end); i >= 0 {
			header = header[:i]
		}
	}

	var t Totals
	found := 0
	for _, m := range totalsLineRegex.FindAllStringSubmatch(header, -1) {
		value := m[2]
		var target *int
		switch m[1] {
		case "Total Segments":
			target = &t.Segments
		case "Total Segments Analyzed":
			target = &t.Analyzed
		case "Successful Analyses":
			target = &t.Successful
		case "Failed Analyses":
			target = &t.Failed
		case "Not Attempted":
			target = &t.NotAttempted
		case "Relevant Segments Found":
			target = &t.Relevant
		case "Total Evidence":
			target = &t.Evidence
		case "High-Confidence Timestamps":
			target = &t.HighConfidence
		case "Total Processing Time":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return t, fmt.Errorf("parsing %s: %w", m[1], err)
			}
			t.Seconds = f
			found++
			continue
		default:
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return t, fmt.Errorf("parsing %s: %w", m[1], err)
		}
		*target = n
		found++
	}
	if found == 0 {
		return t, fmt.Errorf("no summary totals found")
	}
	return t, nil
}
