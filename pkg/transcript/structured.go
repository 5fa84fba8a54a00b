package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// errNotStructured means the input is not a structured document at all.
var errNotStructured = errors.New("not a structured transcript")

// wrapperKeys are the top-level keys whose value is the list of records.
var wrapperKeys = []string{"results", "recordings", "transcripts"}

// record is one transcribed recording in a structured transcript.
type record struct {
	FilePath      string      `json:"file_path" yaml:"file_path"`
	Source        string      `json:"source" yaml:"source"`
	Filename      string      `json:"filename" yaml:"filename"`
	Transcription string      `json:"transcription" yaml:"transcription"`
	Text          string      `json:"text" yaml:"text"`
	Success       *bool       `json:"success" yaml:"success"`
	Error         string      `json:"error" yaml:"error"`
	Segments      []utterance `json:"segments" yaml:"segments"`
}

// utterance is one timed piece of a record, times in seconds.
type utterance struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Text  string  `json:"text" yaml:"text"`
}

func (r record) name() string {
	for _, n := range []string{r.FilePath, r.Source, r.Filename} {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return UnknownRecording
}

func (r record) failed() bool {
	return r.Success != nil && !*r.Success
}

func (r record) body() string {
	if t := strings.TrimSpace(r.Transcription); t != "" {
		return t
	}
	if t := strings.TrimSpace(r.Text); t != "" {
		return t
	}
	parts := make([]string, 0, len(r.Segments))
	for _, u := range r.Segments {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (r record) subSegments() []SubSegment {
	subs := make([]SubSegment, 0, len(r.Segments))
	for _, u := range r.Segments {
		text := strings.TrimSpace(u.Text)
		if text == "" || u.End < u.Start || u.Start < 0 {
			continue
		}
		subs = append(subs, SubSegment{Text: text, Start: seconds(u.Start), End: seconds(u.End)})
	}
	return subs
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// structuredResult is what a structured parse produced.
type structuredResult struct {
	records []record
	skipped int
}

// parseStructured decodes a JSON document, or a YAML document when yamlInput
// is set. It returns errNotStructured when the input is not a well-formed
// document, and a descriptive error when the document is well-formed but
// some records cannot be used.
func parseStructured(data []byte, yamlInput bool) (*structuredResult, error) {
	var (
		decoders []func(*record) error
		err      error
	)
	if yamlInput {
		decoders, err = yamlRecordDecoders(data)
	} else {
		decoders, err = jsonRecordDecoders(data)
	}
	if err != nil {
		return nil, err
	}
	if len(decoders) == 0 {
		return nil, fmt.Errorf("document contains no transcript records")
	}

	result := &structuredResult{}
	for i, decode := range decoders {
		var r record
		if err := decode(&r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if r.failed() {
			result.skipped++
			continue
		}
		if r.body() == "" {
			return nil, fmt.Errorf("record %d (%s) has no transcript text", i, r.name())
		}
		result.records = append(result.records, r)
	}
	return result, nil
}

func jsonRecordDecoders(data []byte) ([]func(*record) error, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') || !json.Valid(trimmed) {
		return nil, errNotStructured
	}

	var items []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
	} else {
		var top map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &top); err != nil {
			return nil, err
		}
		items = []json.RawMessage{trimmed}
		for _, key := range wrapperKeys {
			if raw, ok := top[key]; ok {
				if err := json.Unmarshal(raw, &items); err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				break
			}
		}
	}

	decoders := make([]func(*record) error, len(items))
	for i, item := range items {
		item := item
		decoders[i] = func(r *record) error { return json.Unmarshal(item, r) }
	}
	return decoders, nil
}

func yamlRecordDecoders(data []byte) ([]func(*record) error, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Content) == 0 {
		return nil, errNotStructured
	}
	root := doc.Content[0]

	var items []*yaml.Node
	switch root.Kind {
	case yaml.SequenceNode:
		items = root.Content
	case yaml.MappingNode:
		items = []*yaml.Node{root}
		for i := 0; i+1 < len(root.Content); i += 2 {
			if isWrapperKey(root.Content[i].Value) {
				if root.Content[i+1].Kind != yaml.SequenceNode {
					return nil, fmt.Errorf("%s: expected a list of records", root.Content[i].Value)
				}
				items = root.Content[i+1].Content
				break
			}
		}
	default:
		return nil, errNotStructured
	}

	decoders := make([]func(*record) error, len(items))
	for i, item := range items {
		item := item
		decoders[i] = func(r *record) error { return item.Decode(r) }
	}
	return decoders, nil
}

func isWrapperKey(k string) bool {
	for _, w := range wrapperKeys {
		if k == w {
			return true
		}
	}
	return false
}
