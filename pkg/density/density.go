package density

import (
	"regexp"
	"strings"
)

// Level names a density preset.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// DefaultLevel is used whenever a level is missing or not recognised.
const DefaultLevel = LevelMedium

// Range bounds how many direct sources a single answer block keeps.
// Min and Max bound selection only; nothing is fabricated to reach Min.
type Range struct {
	Min    int `json:"min"`
	Target int `json:"target"`
	Max    int `json:"max"`
}

// SecondarySources controls concept extraction fan-out.
type SecondarySources struct {
	TopSourcesToProcess int `json:"topSourcesToProcess"`
	ConceptsPerSource   int `json:"conceptsPerSource"`
	MaxTotalConcepts    int `json:"maxTotalConcepts"`
}

// SemanticEdges controls the similarity edge builder.
type SemanticEdges struct {
	MinSimilarity float64 `json:"minSimilarity"`
	TopK          int     `json:"topK"`
	MaxEdges      int     `json:"maxEdges"`
}

// Config controls the fan-out of every stage of a graph build.
// Values are copied out of the preset table and never mutated.
type Config struct {
	ExaNumResults         int              `json:"exaNumResults"`
	DirectSourcesPerBlock Range            `json:"directSourcesPerBlock"`
	SecondarySources      SecondarySources `json:"secondarySources"`
	SemanticEdges         SemanticEdges    `json:"semanticEdges"`
}

var presets = map[Level]Config{
	LevelLow: {
		ExaNumResults:         6,
		DirectSourcesPerBlock: Range{Min: 1, Target: 2, Max: 4},
		SecondarySources:      SecondarySources{TopSourcesToProcess: 3, ConceptsPerSource: 2, MaxTotalConcepts: 15},
		SemanticEdges:         SemanticEdges{MinSimilarity: 0.65, TopK: 4, MaxEdges: 40},
	},
	LevelMedium: {
		ExaNumResults:         10,
		DirectSourcesPerBlock: Range{Min: 2, Target: 3, Max: 6},
		SecondarySources:      SecondarySources{TopSourcesToProcess: 5, ConceptsPerSource: 3, MaxTotalConcepts: 30},
		SemanticEdges:         SemanticEdges{MinSimilarity: 0.6, TopK: 6, MaxEdges: 80},
	},
	LevelHigh: {
		ExaNumResults:         15,
		DirectSourcesPerBlock: Range{Min: 3, Target: 4, Max: 8},
		SecondarySources:      SecondarySources{TopSourcesToProcess: 8, ConceptsPerSource: 4, MaxTotalConcepts: 50},
		SemanticEdges:         SemanticEdges{MinSimilarity: 0.55, TopK: 8, MaxEdges: 150},
	},
}

// Levels returns the known levels ordered from sparse to rich.
func Levels() []Level {
	return []Level{LevelLow, LevelMedium, LevelHigh}
}

// ParseLevel normalises a user supplied level name. Anything that is not a
// known level resolves to DefaultLevel.
func ParseLevel(level string) Level {
	l := Level(strings.ToLower(strings.TrimSpace(level)))
	if _, ok := presets[l]; ok {
		return l
	}
	return DefaultLevel
}

// IsKnown reports whether level names a preset exactly (after trimming and
// lower-casing).
func IsKnown(level string) bool {
	_, ok := presets[Level(strings.ToLower(strings.TrimSpace(level)))]
	return ok
}

// Resolve returns the configuration for the named level, falling back to the
// medium preset for empty or unknown names. It never fails.
func Resolve(level string) Config {
	return presets[ParseLevel(level)]
}

// ForLevel returns the configuration of an already parsed level.
func ForLevel(level Level) Config {
	if cfg, ok := presets[level]; ok {
		return cfg
	}
	return presets[DefaultLevel]
}

var (
	conjunctionPattern = regexp.MustCompile(`(?i)\b(and|or|also|additionally|furthermore|moreover)\b`)
	listPattern        = regexp.MustCompile(`(?i)\b(list|enumerate|what are|types of|kinds of|examples of)\b`)
)

// Score computes the additive complexity score of a question. When
// answerBlockCount is nil the answer size does not contribute.
func Score(question string, answerBlockCount *int) int {
	score := 0

	words := len(strings.Fields(question))
	switch {
	case words > 20:
		score += 2
	case words > 10:
		score++
	}

	if strings.Count(question, "?") > 1 {
		score += 2
	}
	if conjunctionPattern.MatchString(question) {
		score++
	}
	if listPattern.MatchString(question) {
		score++
	}

	if answerBlockCount != nil {
		switch {
		case *answerBlockCount >= 6:
			score += 2
		case *answerBlockCount >= 4:
			score++
		}
	}

	return score
}

// Infer picks a level for a question. It is a pure function of its inputs.
func Infer(question string, answerBlockCount *int) Level {
	score := Score(question, answerBlockCount)
	switch {
	case score >= 4:
		return LevelHigh
	case score >= 2:
		return LevelMedium
	default:
		return LevelLow
	}
}
