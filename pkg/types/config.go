// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries caps retries on transient failures (429, 5xx, timeouts).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SearchConfig holds settings for the two search providers.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// TavilyAPIKey and SerperAPIKey authenticate the providers.
	TavilyAPIKey string `json:"tavily_api_key,omitempty" yaml:"tavily_api_key,omitempty"`
	SerperAPIKey string `json:"serper_api_key,omitempty" yaml:"serper_api_key,omitempty"`

	// EnableTavily and EnableSerper select the provider set.
	EnableTavily bool `json:"enable_tavily" yaml:"enable_tavily"`
	EnableSerper bool `json:"enable_serper" yaml:"enable_serper"`

	// MaxResults is the per-sub-query result count for Tavily (MAX_RESEARCH_RESULTS).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// SerperMaxResults is the per-sub-query result count for Serper.
	SerperMaxResults int `json:"serper_max_results" yaml:"serper_max_results"`

	// TavilyMinScore drops Tavily hits below this native score.
	TavilyMinScore float64 `json:"tavily_min_score" yaml:"tavily_min_score"`

	// SearchDepth is Tavily's "basic" or "advanced" depth.
	SearchDepth string `json:"search_depth" yaml:"search_depth"`

	// TimeRange optionally restricts Tavily results (day, week, month, year).
	TimeRange string `json:"time_range,omitempty" yaml:"time_range,omitempty"`

	// IncludeRawContent asks Tavily for page text with each hit. The text
	// stands in for a failed scrape.
	IncludeRawContent bool `json:"include_raw_content" yaml:"include_raw_content"`

	IncludeDomains []string `json:"include_domains,omitempty" yaml:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty" yaml:"exclude_domains,omitempty"`

	// Language and Country map to Serper's hl and gl parameters.
	Language string `json:"language" yaml:"language"`
	Country  string `json:"country" yaml:"country"`
}

// ScrapeConfig holds settings for the intelligent scraper.
type ScrapeConfig struct {
	HeadTimeout time.Duration `json:"head_timeout" yaml:"head_timeout"`
	GetTimeout  time.Duration `json:"get_timeout" yaml:"get_timeout"`
	PDFTimeout  time.Duration `json:"pdf_timeout" yaml:"pdf_timeout"`

	// MaxChars truncates scraped text.
	MaxChars int `json:"max_chars" yaml:"max_chars"`

	// MaxPDFSizeMB aborts PDF downloads beyond this size.
	MaxPDFSizeMB int `json:"max_pdf_size_mb" yaml:"max_pdf_size_mb"`

	// MinInterval is the minimum spacing between requests to one host.
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`

	// MaxRequestsPerMinute is the per-host ceiling over a sliding minute.
	MaxRequestsPerMinute int `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`

	// FailureCachePath is the sqlite file holding cross-run failure entries.
	// Empty disables persistence.
	FailureCachePath string `json:"failure_cache_path,omitempty" yaml:"failure_cache_path,omitempty"`

	// PolicyFile optionally overrides the built-in domain policy.
	PolicyFile string `json:"policy_file,omitempty" yaml:"policy_file,omitempty"`
}

// AIConfig holds shared settings for stages that call the LLM API.
type AIConfig struct {
	// APIKey is the authentication key for the LLM API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint (OpenAI-compatible servers).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// NanoModel, DefaultModel, and StandardModel are the model tiers.
	NanoModel     string `json:"nano_model" yaml:"nano_model"`
	DefaultModel  string `json:"default_model" yaml:"default_model"`
	StandardModel string `json:"standard_model" yaml:"standard_model"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Timeout bounds a single completion call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// ResearchConfig holds coordinator, grading, filtering, and cleaning settings.
type ResearchConfig struct {
	// SubQueryCount is the expander's arity (default 3).
	SubQueryCount int `json:"sub_query_count" yaml:"sub_query_count"`

	// ParallelismEnabled selects bounded (true) or unbounded fan-out.
	ParallelismEnabled bool `json:"parallelism_enabled" yaml:"parallelism_enabled"`

	// MaxConcurrency bounds concurrent searches and scrapes.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`

	// SerperMaxConcurrency bounds concurrent Serper calls.
	SerperMaxConcurrency int `json:"serper_max_concurrency" yaml:"serper_max_concurrency"`

	// TavilyScrapingThreshold is the should-scrape threshold for Tavily items.
	TavilyScrapingThreshold float64 `json:"tavily_scraping_threshold" yaml:"tavily_scraping_threshold"`

	// GarbageFilterThreshold is the minimum quality score to survive filtering.
	GarbageFilterThreshold float64 `json:"garbage_filter_threshold" yaml:"garbage_filter_threshold"`

	// MinScrapedSourcesTarget triggers fallback scraping when unmet.
	MinScrapedSourcesTarget int `json:"min_scraped_sources_target" yaml:"min_scraped_sources_target"`

	// MaxScrapingPerQuery caps scheduled scrapes per sub-query and provider.
	MaxScrapingPerQuery int `json:"max_scraping_per_query" yaml:"max_scraping_per_query"`

	// MaxParallelCleaning cleans every item in its own LLM call.
	MaxParallelCleaning bool `json:"max_parallel_cleaning" yaml:"max_parallel_cleaning"`

	// CleaningBatchSize groups items per LLM call in batch mode.
	CleaningBatchSize int `json:"cleaning_batch_size" yaml:"cleaning_batch_size"`

	// CleaningSkipPDFs leaves PDF text uncleaned.
	CleaningSkipPDFs bool `json:"cleaning_skip_pdfs" yaml:"cleaning_skip_pdfs"`
}

// ClassifierMode selects the domain classifier strategy.
type ClassifierMode string

const (
	ClassifierLLM       ClassifierMode = "llm"
	ClassifierHeuristic ClassifierMode = "heuristic"
)

// ClassifierConfig holds domain classifier settings.
type ClassifierConfig struct {
	Mode      ClassifierMode `json:"mode" yaml:"mode"`
	CacheSize int            `json:"cache_size" yaml:"cache_size"`
}

// ReportConfig holds report writer and context routing settings.
type ReportConfig struct {
	// SmallContextTokens routes to the traditional path at or below this size.
	SmallContextTokens int `json:"small_context_tokens" yaml:"small_context_tokens"`

	// ChunkTokens is the iterative chunk target.
	ChunkTokens int `json:"chunk_tokens" yaml:"chunk_tokens"`

	// SafetyCeilingTokens bounds every enhancement call.
	SafetyCeilingTokens int `json:"safety_ceiling_tokens" yaml:"safety_ceiling_tokens"`

	// MaxOutputTokens is the model's reply limit. Enhancement replies are
	// sized from the running report up to this limit.
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`

	// QualityLevel is standard, enhanced, or premium.
	QualityLevel QualityLevel `json:"quality_level" yaml:"quality_level"`

	// OutputDir receives the final markdown report when set.
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
}

// CollectorConfig holds the YouTube and weather collector settings.
type CollectorConfig struct {
	YouTubeAPIKey     string   `json:"youtube_api_key,omitempty" yaml:"youtube_api_key,omitempty"`
	TranscriptLangs   []string `json:"transcript_langs" yaml:"transcript_langs"`
	OpenWeatherAPIKey string   `json:"openweather_api_key,omitempty" yaml:"openweather_api_key,omitempty"`
	WeatherUnits      string   `json:"weather_units" yaml:"weather_units"`
}

// Config groups all stage configurations.
type Config struct {
	Search     SearchConfig     `json:"search" yaml:"search"`
	Scrape     ScrapeConfig     `json:"scrape" yaml:"scrape"`
	AI         AIConfig         `json:"ai" yaml:"ai"`
	Research   ResearchConfig   `json:"research" yaml:"research"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
	Report     ReportConfig     `json:"report" yaml:"report"`
	Collectors CollectorConfig  `json:"collectors" yaml:"collectors"`

	// StateDir receives master_state_*.json documents.
	StateDir string `json:"state_dir" yaml:"state_dir"`

	// LLMIntent enables LLM confirmation of orchestrator intent rules.
	LLMIntent bool `json:"llm_intent" yaml:"llm_intent"`
}
