package pipeline

import (
	"encoding/json"
	"fmt"
)

// Thresholds are the quality-gate minimums. A review whose scores all meet
// them is accepted as-is; any miss triggers exactly one refinement pass.
type Thresholds struct {
	MinSEOScore         float64
	MinReadabilityScore float64
	MinConfidence       float64
}

// Scores is the numeric record a review stage produces. Read-only input to
// the gate decision; never persisted beyond the run.
type Scores struct {
	SEOScore         float64 `json:"seo_score"`
	ReadabilityScore float64 `json:"readability_score"`
	Confidence       float64 `json:"confidence"`
}

// ParseScores decodes review-stage output. The review contract has already
// guaranteed the fields exist and sit inside their bounds.
func ParseScores(raw json.RawMessage) (Scores, error) {
	var s Scores
	if err := json.Unmarshal(raw, &s); err != nil {
		return Scores{}, fmt.Errorf("decode review scores: %w", err)
	}
	return s, nil
}

// Misses lists every threshold the scores fall short of. Empty means the run
// is accepted without refinement.
func (t Thresholds) Misses(s Scores) []string {
	var misses []string
	if s.SEOScore < t.MinSEOScore {
		misses = append(misses, fmt.Sprintf("seo_score %.1f below %.1f", s.SEOScore, t.MinSEOScore))
	}
	if s.ReadabilityScore < t.MinReadabilityScore {
		misses = append(misses, fmt.Sprintf("readability_score %.1f below %.1f", s.ReadabilityScore, t.MinReadabilityScore))
	}
	if s.Confidence < t.MinConfidence {
		misses = append(misses, fmt.Sprintf("confidence %.2f below %.2f", s.Confidence, t.MinConfidence))
	}
	return misses
}
