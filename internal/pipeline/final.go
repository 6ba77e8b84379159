package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/job"
)

// assembleFinal derives the aggregated run result from completed stage
// outputs: the accepted article content plus a summary projection of the
// earlier stages. No remote calls.
func assembleFinal(def *Definition, j *job.Job, scores Scores, refined bool) (*job.FinalResult, error) {
	humanized, err := stageObject(j, def.Refinement)
	if err != nil {
		return nil, err
	}
	// Summary fields come from the standard catalog stages; a custom
	// pipeline that omits one simply leaves the field empty.
	research := stageObjectOrEmpty(j, "keyword_research")
	brief := stageObjectOrEmpty(j, "content_brief")
	outline := stageObjectOrEmpty(j, "outline")
	images := stageObjectOrEmpty(j, "image_search")

	final := &job.FinalResult{
		Title:           stringField(brief, "title"),
		MetaDescription: stringField(outline, "meta_description"),
		PrimaryKeyword:  stringField(research, "primary_keyword"),
		Keywords:        stringSlice(research, "keywords"),
		Content:         stringField(humanized, "content"),
		Images:          imageSlice(images, "images"),
		Scores: map[string]float64{
			"seo_score":         scores.SEOScore,
			"readability_score": scores.ReadabilityScore,
			"confidence":        scores.Confidence,
		},
		Refined: refined,
	}
	return final, nil
}

func stageObject(j *job.Job, name string) (map[string]any, error) {
	raw := j.StageData(name)
	if raw == nil {
		return nil, fmt.Errorf("stage %q has no completed output", name)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode output of stage %q: %w", name, err)
	}
	return m, nil
}

func stageObjectOrEmpty(j *job.Job, name string) map[string]any {
	m, err := stageObject(j, name)
	if err != nil {
		return map[string]any{}
	}
	return m
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringSlice(m map[string]any, key string) []string {
	items, _ := m[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func imageSlice(m map[string]any, key string) []job.Image {
	items, _ := m[key].([]any)
	out := make([]job.Image, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, job.Image{
			URL: stringField(obj, "url"),
			Alt: stringField(obj, "alt"),
		})
	}
	return out
}
