package transcript

import (
	"regexp"
	"strings"
)

// AudioExtensions are the file extensions recognized in recording boundary lines.
var AudioExtensions = []string{"mp3", "wav", "m4a", "flac", "aac", "ogg", "wma", "mp4", "avi", "mov", "mkv"}

// Matches a recording boundary line: ===== interview_01.mp3 =====
var boundaryRegex = regexp.MustCompile(`(?im)^[ \t]*={3,}[ \t]*([^=\n]+?\.(?:` + strings.Join(AudioExtensions, "|") + `))[ \t]*={3,}[ \t]*$`)

// plainBlock is the raw text found under one boundary line.
type plainBlock struct {
	name string
	text string
}

// splitPlainText splits delimited text into named blocks in file order.
// Text before the first boundary becomes an UnknownRecording block, and text
// without any boundary becomes a single CombinedTranscript block. Blank blocks
// are returned with empty text so the caller can report them.
func splitPlainText(text string) []plainBlock {
	matches := boundaryRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []plainBlock{{name: CombinedTranscript, text: text}}
	}

	var blocks []plainBlock
	if lead := text[:matches[0][0]]; strings.TrimSpace(lead) != "" {
		blocks = append(blocks, plainBlock{name: UnknownRecording, text: lead})
	}

	for i, m := range matches {
		name := strings.TrimSpace(text[m[2]:m[3]])
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		blocks = append(blocks, plainBlock{name: name, text: text[m[1]:end]})
	}
	return blocks
}
