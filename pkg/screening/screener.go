package screening

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/c2buck/audio-transcriber/pkg/logging"
	"github.com/c2buck/audio-transcriber/pkg/transcript"
)

const (
	// PhraseMultiplier scales the category weight for multi-word matches.
	PhraseMultiplier = 10.0

	// PhraseContext and WordContext are the characters kept around a match.
	PhraseContext = 50
	WordContext   = 30

	// MaxTopMatches bounds the matches reported per recording.
	MaxTopMatches = 20

	// MaxTopRecordings bounds the ranked recordings shown in a batch.
	MaxTopRecordings = 10
)

// Match is one term found in a recording.
type Match struct {
	Category string  `json:"category" yaml:"category"`
	Term     string  `json:"term" yaml:"term"`
	Position int     `json:"position" yaml:"position"`
	Context  string  `json:"context" yaml:"context"`
	Phrase   bool    `json:"phrase" yaml:"phrase"`
	Weight   float64 `json:"weight" yaml:"weight"`
}

// Result is the screening outcome for one recording.
type Result struct {
	SourceID       string             `json:"source_id" yaml:"source_id"`
	TotalScore     float64            `json:"total_score" yaml:"total_score"`
	MatchCount     int                `json:"match_count" yaml:"match_count"`
	CategoryScores map[string]float64 `json:"category_scores" yaml:"category_scores"`
	Matches        map[string][]Match `json:"-" yaml:"-"`
	TopMatches     []Match            `json:"top_matches" yaml:"top_matches"`
}

// Batch is the ranked outcome for a set of recordings.
type Batch struct {
	Results         []Result `json:"results" yaml:"results"`
	Top             []Result `json:"top" yaml:"top"`
	TotalRecordings int      `json:"total_recordings" yaml:"total_recordings"`
	WithMatches     int      `json:"with_matches" yaml:"with_matches"`
}

type compiledTerm struct {
	term    string
	pattern *regexp.Regexp
}

type compiledCategory struct {
	Category
	phrases []compiledTerm
	words   []compiledTerm
}

// Screener matches recordings against weighted categories.
type Screener struct {
	categories []compiledCategory
	logger     logging.Logger
}

// NewScreener compiles categories. An empty list selects DefaultCategories.
func NewScreener(categories []Category, logger logging.Logger) (*Screener, error) {
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	s := &Screener{logger: logger.With(logging.F("component", "screening"))}
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		cc := compiledCategory{Category: c}
		for _, term := range c.Terms {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			ct := compiledTerm{
				term:    term,
				pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
			}
			if strings.Contains(term, " ") {
				cc.phrases = append(cc.phrases, ct)
			} else {
				cc.words = append(cc.words, ct)
			}
		}
		s.categories = append(s.categories, cc)
	}
	return s, nil
}

// Categories returns the configured categories.
func (s *Screener) Categories() []Category {
	out := make([]Category, len(s.categories))
	for i, c := range s.categories {
		out[i] = c.Category
	}
	return out
}

// Screen scores one recording's text. Phrases are matched before single
// words, and a word starting inside an earlier match is not counted again.
func (s *Screener) Screen(sourceID, text string) Result {
	res := Result{
		SourceID:       sourceID,
		CategoryScores: map[string]float64{},
		Matches:        map[string][]Match{},
	}
	if strings.TrimSpace(text) == "" {
		return res
	}

	matched := make(map[int]bool)
	var all []Match

	for _, c := range s.categories {
		var found []Match
		var score float64

		for _, p := range c.phrases {
			for _, loc := range p.pattern.FindAllStringIndex(text, -1) {
				if overlaps(matched, loc[0], loc[1]) {
					continue
				}
				for i := loc[0]; i < loc[1]; i++ {
					matched[i] = true
				}
				weight := c.Weight * PhraseMultiplier
				found = append(found, Match{
					Category: c.Name,
					Term:     p.term,
					Position: loc[0],
					Context:  excerpt(text, loc[0], loc[1], PhraseContext),
					Phrase:   true,
					Weight:   weight,
				})
				score += weight
			}
		}

		for _, w := range c.words {
			for _, loc := range w.pattern.FindAllStringIndex(text, -1) {
				if matched[loc[0]] {
					continue
				}
				matched[loc[0]] = true
				found = append(found, Match{
					Category: c.Name,
					Term:     w.term,
					Position: loc[0],
					Context:  excerpt(text, loc[0], loc[1], WordContext),
					Weight:   c.Weight,
				})
				score += c.Weight
			}
		}

		if len(found) > 0 {
			res.CategoryScores[c.Name] = score
			res.Matches[c.Name] = found
			res.TotalScore += score
			res.MatchCount += len(found)
			all = append(all, found...)
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Weight > all[j].Weight })
	if len(all) > MaxTopMatches {
		all = all[:MaxTopMatches]
	}
	res.TopMatches = all
	res.TotalScore = math.Round(res.TotalScore*100) / 100
	return res
}

// ScreenSegments screens every segment and ranks them by score.
func (s *Screener) ScreenSegments(segments []transcript.Segment) Batch {
	batch := Batch{Results: make([]Result, 0, len(segments))}
	for _, seg := range segments {
		r := s.Screen(seg.SourceID, seg.Text)
		if r.MatchCount > 0 {
			batch.WithMatches++
		}
		batch.Results = append(batch.Results, r)
	}
	batch.TotalRecordings = len(batch.Results)

	sort.SliceStable(batch.Results, func(i, j int) bool {
		return batch.Results[i].TotalScore > batch.Results[j].TotalScore
	})
	batch.Top = batch.Results
	if len(batch.Top) > MaxTopRecordings {
		batch.Top = batch.Top[:MaxTopRecordings]
	}

	s.logger.Info("Screening complete",
		logging.F("recordings", batch.TotalRecordings),
		logging.F("with_matches", batch.WithMatches))
	return batch
}

func overlaps(matched map[int]bool, start, end int) bool {
	for i := start; i < end; i++ {
		if matched[i] {
			return true
		}
	}
	return false
}

// excerpt returns text[start:end] widened by n bytes on each side, snapped to
// rune boundaries.
func excerpt(text string, start, end, n int) string {
	from := start - n
	if from < 0 {
		from = 0
	}
	to := end + n
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !isRuneStart(text[from]) {
		from--
	}
	for to < len(text) && !isRuneStart(text[to]) {
		to++
	}
	return strings.TrimSpace(text[from:to])
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
