package transcript

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tserrors "github.com/c2buck/audio-transcriber/pkg/errors"
	"github.com/c2buck/audio-transcriber/pkg/logging"
)

func newTestLoader() *Loader {
	return NewLoader(logging.NewNopLogger())
}

func TestParse_DelimitedPlainText(t *testing.T) {
	content := `==================== interview_01.mp3 ====================
I saw a red car leaving the lot.
It was around nine.

==================== interview_02.WAV ====================
Nothing unusual happened that night.
`
	segments, err := newTestLoader().Parse("combined.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 2)

	assert.Equal(t, "interview_01.mp3", segments[0].SourceID)
	assert.Equal(t, 0, segments[0].Index)
	assert.Equal(t, "I saw a red car leaving the lot.\nIt was around nine.", segments[0].Text)
	assert.Equal(t, 12, segments[0].WordCount)
	assert.False(t, segments[0].HasTiming())

	assert.Equal(t, "interview_02.WAV", segments[1].SourceID)
	assert.Equal(t, 1, segments[1].Index)
	assert.Equal(t, 5, segments[1].WordCount)
}

func TestParse_IndicesContiguousInFileOrder(t *testing.T) {
	var b strings.Builder
	names := []string{"c.mp3", "a.flac", "b.ogg", "d.m4a", "e.wma", "f.aac"}
	for _, n := range names {
		b.WriteString("=== " + n + " ===\n")
		b.WriteString("content for " + n + "\n\n")
	}

	segments, err := newTestLoader().Parse("t.txt", []byte(b.String()))
	require.NoError(t, err)
	require.Len(t, segments, len(names))

	for i, seg := range segments {
		assert.Equal(t, i, seg.Index)
		assert.Equal(t, names[i], seg.SourceID)
		assert.Equal(t, "content for "+names[i], seg.Text)
	}
}

func TestParse_LeadingTextBecomesUnknownRecording(t *testing.T) {
	content := `Preamble spoken before any file marker.
=== first.mp3 ===
Body of the first file.
`
	segments, err := newTestLoader().Parse("t.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, UnknownRecording, segments[0].SourceID)
	assert.Equal(t, "first.mp3", segments[1].SourceID)
}

func TestParse_NoBoundariesBecomesCombinedTranscript(t *testing.T) {
	segments, err := newTestLoader().Parse("t.txt", []byte("just some words\nwith no markers"))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, CombinedTranscript, segments[0].SourceID)
	assert.Equal(t, 6, segments[0].WordCount)
}

func TestParse_EmptyBlocksSkippedAndIndicesStayContiguous(t *testing.T) {
	content := "=== a.mp3 ===\n\n\n=== b.mp3 ===\nhello there\n=== c.mp3 ===\ngeneral kenobi\n"
	segments, err := newTestLoader().Parse("t.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "b.mp3", segments[0].SourceID)
	assert.Equal(t, 0, segments[0].Index)
	assert.Equal(t, "c.mp3", segments[1].SourceID)
	assert.Equal(t, 1, segments[1].Index)
}

func TestParse_DuplicateNamesMadeUnique(t *testing.T) {
	content := "=== a.mp3 ===\none\n=== a.mp3 ===\ntwo\n=== a.mp3 ===\nthree\n"
	segments, err := newTestLoader().Parse("t.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, "a.mp3", segments[0].SourceID)
	assert.Equal(t, "a.mp3 (2)", segments[1].SourceID)
	assert.Equal(t, "a.mp3 (3)", segments[2].SourceID)
}

func TestParse_UnrecognizedExtensionIsNotABoundary(t *testing.T) {
	content := "=== notes.docx ===\nsome text\n"
	segments, err := newTestLoader().Parse("t.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, CombinedTranscript, segments[0].SourceID)
}

func TestParse_EmptyInputIsFormatError(t *testing.T) {
	for _, content := range []string{"", "   \n\t\n", "=== a.mp3 ===\n\n"} {
		_, err := newTestLoader().Parse("t.txt", []byte(content))
		require.Error(t, err, "content %q", content)
		assert.True(t, tserrors.IsFormat(err), "content %q", content)
	}
}

func TestLoad_MissingFileIsFormatError(t *testing.T) {
	_, err := newTestLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, tserrors.IsFormat(err))
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.txt")
	require.NoError(t, os.WriteFile(path, []byte("=== x.mp3 ===\nhello\n"), 0600))

	segments, err := newTestLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "x.mp3", segments[0].SourceID)
}

func TestLoad_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestLoader().Load(ctx, "whatever.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_TimedLinesBecomeSubSegments(t *testing.T) {
	content := `=== call.mp3 ===
[00:00 - 00:04] Hello, who is this?
[00:04 - 00:09] I saw a red car leaving.
[01:02:03.500 --> 01:02:07.000] Much later in the call.
`
	segments, err := newTestLoader().Parse("t.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 1)

	seg := segments[0]
	require.True(t, seg.HasTiming())
	require.Len(t, seg.SubSegments, 3)
	assert.Equal(t, "Hello, who is this?\nI saw a red car leaving.\nMuch later in the call.", seg.Text)

	assert.Equal(t, SubSegment{Text: "I saw a red car leaving.", Start: 4 * time.Second, End: 9 * time.Second}, seg.SubSegments[1])
	assert.Equal(t, time.Hour+2*time.Minute+3500*time.Millisecond, seg.SubSegments[2].Start)
	assert.Equal(t, time.Hour+2*time.Minute+7*time.Second, seg.Duration())
}

func TestParse_VTTCues(t *testing.T) {
	content := `WEBVTT

1
00:00:00.000 --> 00:00:05.579
Okay, that sounds good.

2
00:00:05.579 --> 00:00:09.000
The car was red.
It drove off fast.
`
	segments, err := newTestLoader().Parse("meeting.vtt", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 1)

	seg := segments[0]
	require.Len(t, seg.SubSegments, 2)
	assert.Equal(t, "The car was red. It drove off fast.", seg.SubSegments[1].Text)
	assert.Equal(t, 5579*time.Millisecond, seg.SubSegments[1].Start)
	assert.NotContains(t, seg.Text, "-->")
	assert.NotContains(t, seg.Text, "WEBVTT")
}

func TestParse_StructuredJSONArray(t *testing.T) {
	content := `[
  {"file_path": "/audio/a.mp3", "success": true, "transcription": "I saw a red car leaving.",
   "segments": [{"id": 0, "start": 0.0, "end": 2.5, "text": "I saw"}, {"id": 1, "start": 2.5, "end": 4.0, "text": "a red car leaving."}]},
  {"file_path": "/audio/b.mp3", "success": false, "error": "decode failed"},
  {"file_path": "/audio/c.mp3", "success": true, "transcription": "Nothing to report."}
]`
	segments, err := newTestLoader().Parse("results.json", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 2)

	assert.Equal(t, "/audio/a.mp3", segments[0].SourceID)
	assert.Equal(t, 0, segments[0].Index)
	require.Len(t, segments[0].SubSegments, 2)
	assert.Equal(t, 2500*time.Millisecond, segments[0].SubSegments[1].Start)
	assert.Equal(t, 4*time.Second, segments[0].SubSegments[1].End)

	assert.Equal(t, "/audio/c.mp3", segments[1].SourceID)
	assert.Equal(t, 1, segments[1].Index)
	assert.False(t, segments[1].HasTiming())
}

func TestParse_StructuredWrapperAndTextFromUtterances(t *testing.T) {
	content := `{"results": [{"source": "x.wav", "segments": [{"start": 0, "end": 1, "text": "hello"}, {"start": 1, "end": 2, "text": "world"}]}]}`
	segments, err := newTestLoader().Parse("results.json", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "x.wav", segments[0].SourceID)
	assert.Equal(t, "hello world", segments[0].Text)
	assert.Equal(t, 2, segments[0].WordCount)
}

func TestParse_StructuredYAML(t *testing.T) {
	content := `recordings:
  - filename: one.mp3
    transcription: first recording
  - filename: two.mp3
    text: second recording
`
	segments, err := newTestLoader().Parse("results.yaml", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "one.mp3", segments[0].SourceID)
	assert.Equal(t, "second recording", segments[1].Text)
}

func TestParse_PartialStructuredDegradesToPlainText(t *testing.T) {
	// Second record has no text at all, so the whole file is treated as text.
	content := `[{"file_path": "a.mp3", "transcription": "fine"}, {"file_path": "b.mp3"}]`
	segments, err := newTestLoader().Parse("results.json", []byte(content))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, CombinedTranscript, segments[0].SourceID)
	assert.Contains(t, segments[0].Text, `"a.mp3"`)
}

func TestParse_AllRecordsFailedIsFormatError(t *testing.T) {
	content := `[{"file_path": "a.mp3", "success": false}]`
	_, err := newTestLoader().Parse("results.json", []byte(content))
	require.Error(t, err)
	assert.True(t, tserrors.IsFormat(err))
}

func TestParse_Windows1252Fallback(t *testing.T) {
	// "café" with 0xE9 is invalid UTF-8 on its own.
	content := []byte("=== a.mp3 ===\ncaf\xe9 meeting\n")
	segments, err := newTestLoader().Parse("t.txt", content)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "café meeting", segments[0].Text)
}

func TestParse_UTF8BOMStripped(t *testing.T) {
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("=== a.mp3 ===\nhello\n")...)
	segments, err := newTestLoader().Parse("t.txt", content)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "a.mp3", segments[0].SourceID)
}

func TestParse_UTF16LE(t *testing.T) {
	text := "=== a.mp3 ===\nhi\n"
	content := []byte{0xFF, 0xFE}
	for _, r := range text {
		content = append(content, byte(r), 0)
	}
	segments, err := newTestLoader().Parse("t.txt", content)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "hi", segments[0].Text)
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{65 * time.Second, "01:05"},
		{59*time.Minute + 59*time.Second, "59:59"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{-time.Second, "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.in), "FormatTimestamp(%v)", tt.in)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"01:05", 65 * time.Second, true},
		{"00:00:05.579", 5579 * time.Millisecond, true},
		{"00:00:05,5", 5500 * time.Millisecond, true},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second, true},
		{"5", 0, false},
		{"aa:bb", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseClock(tt.in)
		assert.Equal(t, tt.ok, ok, "parseClock(%q)", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "parseClock(%q)", tt.in)
		}
	}
}
