package pipeline

import "github.com/MarvinWicks1/Blog-Elite-sub000/internal/contract"

// Default returns the built-in Blog-Elite article pipeline: keyword research
// through quality review, with humanize as the quality-gate refinement
// stage.
func Default() *Definition {
	def := &Definition{
		Review:     "review",
		Refinement: "humanize",
		Stages: []StageDef{
			{
				Name:  "keyword_research",
				Label: "Researching keywords",
				Inputs: []InputRef{
					{From: SourceInput, Field: "subject", As: "subject"},
					{From: SourceInput, Field: "context", As: "context"},
					{From: SourceInput, Field: "instructions", As: "instructions"},
				},
				Output: &contract.Contract{Fields: []contract.FieldSpec{
					{Name: "primary_keyword", Type: contract.TypeString},
					{Name: "keywords", Type: contract.TypeArray, MinItems: 5},
					{Name: "search_intent", Type: contract.TypeString},
				}},
			},
			{
				Name:  "content_brief",
				Label: "Building content brief",
				Inputs: []InputRef{
					{From: SourceInput, Field: "subject", As: "subject"},
					{From: SourceInput, Field: "context", As: "context"},
					{From: "keyword_research", As: "keyword_research"},
				},
				Output: &contract.Contract{Fields: []contract.FieldSpec{
					{Name: "title", Type: contract.TypeString},
					{Name: "audience", Type: contract.TypeString},
					{Name: "tone", Type: contract.TypeString},
					{Name: "word_count_target", Type: contract.TypeNumber, Min: contract.Ptr(300), Max: contract.Ptr(20000)},
				}},
			},
			{
				Name:  "outline",
				Label: "Outlining the article",
				Inputs: []InputRef{
					{From: SourceInput, Field: "subject", As: "subject"},
					{From: "keyword_research", Field: "primary_keyword", As: "primary_keyword"},
					{From: "content_brief", As: "brief"},
				},
				Output: &contract.Contract{Fields: []contract.FieldSpec{
					{Name: "sections", Type: contract.TypeArray, MinItems: 3, ItemFields: []contract.FieldSpec{
						{Name: "heading", Type: contract.TypeString},
					}},
					{Name: "meta_description", Type: contract.TypeString},
				}},
			},
			{
				Name:  "write_sections",
				Label: "Writing sections",
				Inputs: []InputRef{
					{From: SourceInput, Field: "subject", As: "subject"},
					{From: "content_brief", As: "brief"},
					{From: "keyword_research", Field: "keywords", As: "keywords"},
				},
				Itemized: &Itemized{
					From:    "outline",
					Field:   "sections",
					As:      "section",
					Collect: "sections",
				},
				Output: &contract.Contract{Fields: []contract.FieldSpec{
					{Name: "sections", Type: contract.TypeArray, MinItems: 1, ItemFields: []contract.FieldSpec{
						{Name: "heading", Type: contract.TypeString},
						{Name: "body", Type: contract.TypeString},
					}},
				}},
			},
			{
				Name:  "seo_optimize",
				Label: "Optimizing for SEO",
				Inputs: []InputRef{
					{From: "write_sections", Field: "sections", As: "sections"},
					{From: "keyword_research", Field: "primary_keyword", As: "primary_keyword"},
					{From: "keyword_research", Field: "keywords", As: "keywords"},
				},
				Output: &contract.Contract{Fields: []contract.FieldSpec{
					{Name: "content", Type: contract.TypeString},
					{Name: "keyword_density", Type: contract.TypeNumber, Min: contract.Ptr(0), Max: contract.Ptr(100)},
				}},
			},
			{
				Name:  "humanize",
				Label: "Humanizing the draft",
				Inputs: []InputRef{
					{From: "seo_optimize", Field: "content", As: "content"},
					{From: "content_brief", Field: "tone", As: "tone"},
				},
				Output: &contract.Contract{Fields: []contract.FieldSpec{
					{Name: "content", Type: contract.TypeString},
				}},
			},
			{
				Name:  "image_search",
				Label: "Finding images",
				Inputs: []InputRef{
					{From: SourceInput, Field: "subject", As: "subject"},
					{From: "outline", Field: "sections", As: "sections"},
				},
				Output: &contract.Contract{Fields: []contract.FieldSpec{
					{Name: "images", Type: contract.TypeArray, ItemFields: []contract.FieldSpec{
						{Name: "url", Type: contract.TypeString},
						{Name: "alt", Type: contract.TypeString},
					}},
				}},
			},
			{
				Name:  "review",
				Label: "Reviewing quality",
				Inputs: []InputRef{
					{From: "humanize", Field: "content", As: "content"},
					{From: "keyword_research", Field: "primary_keyword", As: "primary_keyword"},
					{From: "content_brief", As: "brief"},
				},
				Output: &contract.Contract{Fields: []contract.FieldSpec{
					{Name: "seo_score", Type: contract.TypeNumber, Min: contract.Ptr(0), Max: contract.Ptr(100)},
					{Name: "readability_score", Type: contract.TypeNumber, Min: contract.Ptr(0), Max: contract.Ptr(100)},
					{Name: "confidence", Type: contract.TypeNumber, Min: contract.Ptr(0), Max: contract.Ptr(1)},
				}},
			},
		},
	}
	if err := def.finalize(); err != nil {
		// The built-in catalog is static; failing to compile it is a
		// programming error.
		panic(err)
	}
	return def
}
