package analysis

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

// MaxTimingHints caps the number of timed lines included in a prompt.
const MaxTimingHints = 200

const promptTemplateText = `You are reviewing a recording transcript for material relevant to an investigation.
A recording is relevant when it mentions, discusses or refers to anything in the case facts.
Answer using exactly these lines:
VERDICT: RELEVANT or VERDICT: NOT RELEVANT
For each relevant passage, add:
QUOTE: "<exact words from the transcript>"
WHY: <one sentence explaining the relevance>
{{- if .Hints}}
TIME: <mm:ss where the quote starts, taken from the timing lines>
{{- end}}
Quote the transcript word for word. Do not invent quotes.

CASE FACTS:
{{.CaseFacts}}

RECORDING: {{.SourceID}}

TRANSCRIPT:
{{.Transcript}}
{{- if .Hints}}

TIMING:
{{- range .Hints}}
{{.}}
{{- end}}
{{- if .Truncated}}
(timing truncated after {{len .Hints}} lines)
{{- end}}
{{- end}}

QUESTION:
Does this recording contain anything relevant to the case facts? Quote any relevant lines and explain why.`

var promptTemplate = template.Must(template.New("analysis").Parse(promptTemplateText))

type promptData struct {
	CaseFacts  string
	SourceID   string
	Transcript string
	Hints      []string
	Truncated  bool
}

// BuildPrompt renders the analysis prompt for one segment.
func BuildPrompt(seg transcript.Segment, caseContext string) (string, error) {
	data := promptData{
		CaseFacts:  strings.TrimSpace(caseContext),
		SourceID:   seg.SourceID,
		Transcript: seg.Text,
	}

	subs := seg.SubSegments
	if len(subs) > MaxTimingHints {
		subs = subs[:MaxTimingHints]
		data.Truncated = true
	}
	for _, sub := range subs {
		data.Hints = append(data.Hints, fmt.Sprintf("[%s-%s] %s",
			transcript.FormatTimestamp(sub.Start), transcript.FormatTimestamp(sub.End), sub.Text))
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return buf.String(), nil
}
