// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ReportStyle selects the report layout.
type ReportStyle string

const (
	StyleSummary       ReportStyle = "summary"
	StyleTop10         ReportStyle = "top_10"
	StyleComprehensive ReportStyle = "comprehensive"
	StyleExecutive     ReportStyle = "executive"
	StyleTechnical     ReportStyle = "technical"
)

// ValidStyle reports whether s is a known report style.
func ValidStyle(s ReportStyle) bool {
	switch s {
	case StyleSummary, StyleTop10, StyleComprehensive, StyleExecutive, StyleTechnical:
		return true
	}
	return false
}

// SourceType records which capabilities fed a report.
type SourceType string

const (
	SourceResearch    SourceType = "research"
	SourceYouTube     SourceType = "youtube"
	SourceWeather     SourceType = "weather"
	SourceMultiSource SourceType = "multi_source"
)

// QualityLevel controls the optional enhancement and review passes.
type QualityLevel string

const (
	QualityStandard QualityLevel = "standard"
	QualityEnhanced QualityLevel = "enhanced"
	QualityPremium  QualityLevel = "premium"
)

// Strategy is the context assessor's routing decision.
type Strategy string

const (
	StrategyTraditional Strategy = "traditional"
	StrategyIterative   Strategy = "iterative"
)

// ReportArtifact is the report writer's output.
type ReportArtifact struct {
	Style              ReportStyle    `json:"style" yaml:"style"`
	SourceType         SourceType     `json:"source_type" yaml:"source_type"`
	QualityLevel       QualityLevel   `json:"quality_level" yaml:"quality_level"`
	Text               string         `json:"text" yaml:"text"`
	WordCount          int            `json:"word_count" yaml:"word_count"`
	ConfidenceScore    float64        `json:"confidence_score" yaml:"confidence_score"`
	ProcessingApproach Strategy       `json:"processing_approach" yaml:"processing_approach"`
	ContextSizeTokens  int            `json:"context_size_tokens" yaml:"context_size_tokens"`
	SourcesProcessed   int            `json:"sources_processed" yaml:"sources_processed"`
	GenerationMetadata map[string]any `json:"generation_metadata,omitempty" yaml:"generation_metadata,omitempty"`
}

// ContextAssessment is the context assessor's output.
type ContextAssessment struct {
	TotalEstimatedTokens int            `json:"total_estimated_tokens" yaml:"total_estimated_tokens"`
	RecommendedStrategy  Strategy       `json:"recommended_strategy" yaml:"recommended_strategy"`
	RequiresChunking     bool           `json:"requires_chunking" yaml:"requires_chunking"`
	EstimatedChunks      int            `json:"estimated_chunks" yaml:"estimated_chunks"`
	Breakdown            map[string]int `json:"breakdown" yaml:"breakdown"`
	Reasoning            string         `json:"reasoning" yaml:"reasoning"`
}
