// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config builds a types.Config from viper: defaults, an optional
// research-agents.yaml, environment variables, and .secrets/ files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/secrets"
	"github.com/pdiddy/research-agents/pkg/types"
)

// EnvPrefix applies to keys without an explicit binding below.
const EnvPrefix = "RESEARCH_AGENTS"

// envBindings maps config keys to the environment names operators
// already use for them.
var envBindings = map[string]string{
	"research.parallelism_enabled":        "RESEARCH_PARALLELISM_ENABLED",
	"research.max_concurrency":            "RESEARCH_MAX_CONCURRENCY",
	"research.serper_max_concurrency":     "SERPER_MAX_CONCURRENCY",
	"search.tavily_min_score":             "TAVILY_MIN_SCORE",
	"research.tavily_scraping_threshold":  "TAVILY_SCRAPING_THRESHOLD",
	"research.garbage_filter_threshold":   "GARBAGE_FILTER_THRESHOLD",
	"research.min_scraped_sources_target": "MIN_SCRAPED_SOURCES_TARGET",
	"research.max_scraping_per_query":     "MAX_SCRAPING_PER_QUERY",
	"search.serper_max_results":           "SERPER_MAX_RESULTS",
	"search.max_results":                  "MAX_RESEARCH_RESULTS",
	"research.max_parallel_cleaning":      "MAX_PARALLEL_CLEANING",
	"research.cleaning_skip_pdfs":         "CLEANING_SKIP_PDFS",
	"classifier.mode":                     "DOMAIN_CLASSIFIER_MODE",
	"llm_intent":                          "ORCHESTRATOR_LLM_INTENT",

	"search.tavily_api_key":          "TAVILY_API_KEY",
	"search.serper_api_key":          "SERPER_API_KEY",
	"ai.api_key":                     "OPENAI_API_KEY",
	"collectors.youtube_api_key":     "YOUTUBE_API_KEY",
	"collectors.openweather_api_key": "OPENWEATHER_API_KEY",
}

// secretKeys maps credential file names to config keys.
var secretKeys = map[string]string{
	secrets.TavilyAPIKey:      "search.tavily_api_key",
	secrets.SerperAPIKey:      "search.serper_api_key",
	secrets.OpenAIAPIKey:      "ai.api_key",
	secrets.YouTubeAPIKey:     "collectors.youtube_api_key",
	secrets.OpenWeatherAPIKey: "collectors.openweather_api_key",
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.enable_tavily", true)
	v.SetDefault("search.enable_serper", true)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.serper_max_results", 10)
	v.SetDefault("search.tavily_min_score", 0.3)
	v.SetDefault("search.search_depth", "advanced")
	v.SetDefault("search.include_raw_content", false)
	v.SetDefault("search.language", "en")
	v.SetDefault("search.country", "us")

	v.SetDefault("scrape.head_timeout", 8*time.Second)
	v.SetDefault("scrape.get_timeout", 15*time.Second)
	v.SetDefault("scrape.pdf_timeout", 30*time.Second)
	v.SetDefault("scrape.max_chars", 50000)
	v.SetDefault("scrape.max_pdf_size_mb", 50)
	v.SetDefault("scrape.min_interval", time.Second)
	v.SetDefault("scrape.max_requests_per_minute", 20)
	v.SetDefault("scrape.failure_cache_path", "cache/failures.db")

	v.SetDefault("ai.nano_model", "gpt-4.1-nano")
	v.SetDefault("ai.default_model", "gpt-4.1-mini")
	v.SetDefault("ai.standard_model", "gpt-4.1")
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.timeout", 120*time.Second)

	v.SetDefault("research.sub_query_count", 3)
	v.SetDefault("research.parallelism_enabled", true)
	v.SetDefault("research.max_concurrency", 10)
	v.SetDefault("research.serper_max_concurrency", 5)
	v.SetDefault("research.tavily_scraping_threshold", 0.65)
	v.SetDefault("research.garbage_filter_threshold", 0.5)
	v.SetDefault("research.min_scraped_sources_target", 20)
	v.SetDefault("research.max_scraping_per_query", 5)
	v.SetDefault("research.max_parallel_cleaning", false)
	v.SetDefault("research.cleaning_batch_size", 5)
	v.SetDefault("research.cleaning_skip_pdfs", false)

	v.SetDefault("classifier.mode", string(types.ClassifierLLM))
	v.SetDefault("classifier.cache_size", 256)

	v.SetDefault("report.small_context_tokens", 180_000)
	v.SetDefault("report.chunk_tokens", 150_000)
	v.SetDefault("report.safety_ceiling_tokens", 240_000)
	v.SetDefault("report.max_output_tokens", 32_768)
	v.SetDefault("report.quality_level", string(types.QualityStandard))
	v.SetDefault("report.output_dir", "reports")

	v.SetDefault("collectors.transcript_langs", []string{"en", "en-US", "en-GB"})
	v.SetDefault("collectors.weather_units", "metric")

	v.SetDefault("state_dir", "state")
	v.SetDefault("llm_intent", false)
}

// Bind wires environment variables into v.
func Bind(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("binding %s: %w", env, err)
		}
	}
	return nil
}

// ApplySecrets fills credentials from .secrets/ files. Values already set
// by the environment or config file win.
func ApplySecrets(v *viper.Viper, creds map[string]string) {
	for file, key := range secretKeys {
		if s, ok := creds[file]; ok && v.GetString(key) == "" {
			v.Set(key, s)
		}
	}
}

// Load reads every setting from v and validates the result.
func Load(v *viper.Viper) (types.Config, error) {
	cfg := types.Config{
		Search: types.SearchConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:    v.GetDuration("search.timeout"),
				MaxRetries: v.GetInt("search.max_retries"),
			},
			TavilyAPIKey:      v.GetString("search.tavily_api_key"),
			SerperAPIKey:      v.GetString("search.serper_api_key"),
			EnableTavily:      v.GetBool("search.enable_tavily"),
			EnableSerper:      v.GetBool("search.enable_serper"),
			MaxResults:        v.GetInt("search.max_results"),
			SerperMaxResults:  v.GetInt("search.serper_max_results"),
			TavilyMinScore:    v.GetFloat64("search.tavily_min_score"),
			SearchDepth:       v.GetString("search.search_depth"),
			TimeRange:         v.GetString("search.time_range"),
			IncludeRawContent: v.GetBool("search.include_raw_content"),
			IncludeDomains:    v.GetStringSlice("search.include_domains"),
			ExcludeDomains:    v.GetStringSlice("search.exclude_domains"),
			Language:          v.GetString("search.language"),
			Country:           v.GetString("search.country"),
		},
		Scrape: types.ScrapeConfig{
			HeadTimeout:          v.GetDuration("scrape.head_timeout"),
			GetTimeout:           v.GetDuration("scrape.get_timeout"),
			PDFTimeout:           v.GetDuration("scrape.pdf_timeout"),
			MaxChars:             v.GetInt("scrape.max_chars"),
			MaxPDFSizeMB:         v.GetInt("scrape.max_pdf_size_mb"),
			MinInterval:          v.GetDuration("scrape.min_interval"),
			MaxRequestsPerMinute: v.GetInt("scrape.max_requests_per_minute"),
			FailureCachePath:     v.GetString("scrape.failure_cache_path"),
			PolicyFile:           v.GetString("scrape.policy_file"),
		},
		AI: types.AIConfig{
			APIKey:        v.GetString("ai.api_key"),
			BaseURL:       v.GetString("ai.base_url"),
			NanoModel:     v.GetString("ai.nano_model"),
			DefaultModel:  v.GetString("ai.default_model"),
			StandardModel: v.GetString("ai.standard_model"),
			MaxRetries:    v.GetInt("ai.max_retries"),
			Timeout:       v.GetDuration("ai.timeout"),
		},
		Research: types.ResearchConfig{
			SubQueryCount:           v.GetInt("research.sub_query_count"),
			ParallelismEnabled:      v.GetBool("research.parallelism_enabled"),
			MaxConcurrency:          v.GetInt("research.max_concurrency"),
			SerperMaxConcurrency:    v.GetInt("research.serper_max_concurrency"),
			TavilyScrapingThreshold: v.GetFloat64("research.tavily_scraping_threshold"),
			GarbageFilterThreshold:  v.GetFloat64("research.garbage_filter_threshold"),
			MinScrapedSourcesTarget: v.GetInt("research.min_scraped_sources_target"),
			MaxScrapingPerQuery:     v.GetInt("research.max_scraping_per_query"),
			MaxParallelCleaning:     v.GetBool("research.max_parallel_cleaning"),
			CleaningBatchSize:       v.GetInt("research.cleaning_batch_size"),
			CleaningSkipPDFs:        v.GetBool("research.cleaning_skip_pdfs"),
		},
		Classifier: types.ClassifierConfig{
			Mode:      types.ClassifierMode(strings.ToLower(v.GetString("classifier.mode"))),
			CacheSize: v.GetInt("classifier.cache_size"),
		},
		Report: types.ReportConfig{
			SmallContextTokens:  v.GetInt("report.small_context_tokens"),
			ChunkTokens:         v.GetInt("report.chunk_tokens"),
			SafetyCeilingTokens: v.GetInt("report.safety_ceiling_tokens"),
			MaxOutputTokens:     v.GetInt("report.max_output_tokens"),
			QualityLevel:        types.QualityLevel(strings.ToLower(v.GetString("report.quality_level"))),
			OutputDir:           v.GetString("report.output_dir"),
		},
		Collectors: types.CollectorConfig{
			YouTubeAPIKey:     v.GetString("collectors.youtube_api_key"),
			TranscriptLangs:   v.GetStringSlice("collectors.transcript_langs"),
			OpenWeatherAPIKey: v.GetString("collectors.openweather_api_key"),
			WeatherUnits:      v.GetString("collectors.weather_units"),
		},
		StateDir:  v.GetString("state_dir"),
		LLMIntent: v.GetBool("llm_intent"),
	}
	return cfg, Validate(cfg)
}

// Validate checks ranges and enumerations. All problems are reported.
func Validate(cfg types.Config) error {
	var errs []error
	unit := func(name string, x float64) {
		if x < 0 || x > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %g", name, x))
		}
	}
	positive := func(name string, n int) {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, n))
		}
	}

	unit("TAVILY_MIN_SCORE", cfg.Search.TavilyMinScore)
	unit("TAVILY_SCRAPING_THRESHOLD", cfg.Research.TavilyScrapingThreshold)
	unit("GARBAGE_FILTER_THRESHOLD", cfg.Research.GarbageFilterThreshold)
	positive("RESEARCH_MAX_CONCURRENCY", cfg.Research.MaxConcurrency)
	positive("SERPER_MAX_CONCURRENCY", cfg.Research.SerperMaxConcurrency)
	positive("MIN_SCRAPED_SOURCES_TARGET", cfg.Research.MinScrapedSourcesTarget)
	positive("MAX_SCRAPING_PER_QUERY", cfg.Research.MaxScrapingPerQuery)
	positive("MAX_RESEARCH_RESULTS", cfg.Search.MaxResults)
	positive("SERPER_MAX_RESULTS", cfg.Search.SerperMaxResults)

	switch cfg.Classifier.Mode {
	case types.ClassifierLLM, types.ClassifierHeuristic:
	default:
		errs = append(errs, fmt.Errorf("DOMAIN_CLASSIFIER_MODE must be llm or heuristic, got %q", cfg.Classifier.Mode))
	}
	switch cfg.Report.QualityLevel {
	case types.QualityStandard, types.QualityEnhanced, types.QualityPremium:
	default:
		errs = append(errs, fmt.Errorf("report quality level must be standard, enhanced, or premium, got %q", cfg.Report.QualityLevel))
	}
	r := cfg.Report
	if r.ChunkTokens <= 0 || r.SmallContextTokens <= 0 || r.SafetyCeilingTokens < r.SmallContextTokens {
		errs = append(errs, fmt.Errorf("context thresholds must satisfy 0 < chunk, 0 < small <= ceiling (got chunk %d, small %d, ceiling %d)",
			r.ChunkTokens, r.SmallContextTokens, r.SafetyCeilingTokens))
	}
	if !cfg.Search.EnableTavily && !cfg.Search.EnableSerper {
		errs = append(errs, errors.New("at least one search provider must be enabled"))
	}

	if len(errs) > 0 {
		return fault.New(fault.Config, "config", errors.Join(errs...))
	}
	return nil
}

// Require reports missing credentials for the capabilities a job uses.
func Require(cfg types.Config, capabilities []string) error {
	var missing []string
	for _, c := range capabilities {
		switch c {
		case "research":
			if cfg.AI.APIKey == "" {
				missing = append(missing, "OPENAI_API_KEY")
			}
			if cfg.Search.EnableTavily && cfg.Search.TavilyAPIKey == "" {
				missing = append(missing, "TAVILY_API_KEY")
			}
			if cfg.Search.EnableSerper && cfg.Search.SerperAPIKey == "" {
				missing = append(missing, "SERPER_API_KEY")
			}
		case "youtube":
			if cfg.Collectors.YouTubeAPIKey == "" {
				missing = append(missing, "YOUTUBE_API_KEY")
			}
		case "weather":
			if cfg.Collectors.OpenWeatherAPIKey == "" {
				missing = append(missing, "OPENWEATHER_API_KEY")
			}
		}
	}
	if len(missing) > 0 {
		return fault.Errorf(fault.Config, "config", "missing credentials: %s (set the variable or add the key to .secrets/)", strings.Join(missing, ", "))
	}
	return nil
}
