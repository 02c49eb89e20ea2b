// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-agents/pkg/types"
)

// PipelineFile is the on-disk representation of a research run. A saved run
// can be reloaded to rewrite the report without re-querying providers or
// re-scraping pages.
type PipelineFile struct {
	Query    PipelineQuery          `yaml:"query"`
	Config   PipelineFileConfig     `yaml:"config"`
	Pipeline types.ResearchPipeline `yaml:"pipeline"`
	SavedAt  time.Time              `yaml:"saved_at"`
}

// PipelineQuery stores the user query and the sub-queries actually searched.
type PipelineQuery struct {
	Original   string   `yaml:"original"`
	SubQueries []string `yaml:"sub_queries"`
}

// PipelineFileConfig stores the settings that shaped the results.
type PipelineFileConfig struct {
	Providers      []string `yaml:"providers"`
	MaxResults     int      `yaml:"max_results"`
	SubQueryCount  int      `yaml:"sub_query_count"`
	TargetScraped  int      `yaml:"min_scraped_sources_target"`
	MaxScrapeQuery int      `yaml:"max_scraping_per_query"`
}

// WritePipelineFile saves a research pipeline and its settings to a YAML file.
func WritePipelineFile(path string, p *types.ResearchPipeline, search types.SearchConfig, research types.ResearchConfig) error {
	if p == nil {
		return fmt.Errorf("writing pipeline file: nil pipeline")
	}
	var providers []string
	if search.EnableTavily {
		providers = append(providers, types.ProviderTavily)
	}
	if search.EnableSerper {
		providers = append(providers, types.ProviderSerper)
	}
	pf := PipelineFile{
		Query: PipelineQuery{Original: p.OriginalQuery, SubQueries: p.SubQueries},
		Config: PipelineFileConfig{
			Providers:      providers,
			MaxResults:     search.MaxResults,
			SubQueryCount:  research.SubQueryCount,
			TargetScraped:  research.MinScrapedSourcesTarget,
			MaxScrapeQuery: research.MaxScrapingPerQuery,
		},
		Pipeline: *p,
		SavedAt:  time.Now(),
	}

	data, err := yaml.Marshal(&pf)
	if err != nil {
		return fmt.Errorf("marshaling pipeline file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPipelineFile loads a previously saved pipeline file from disk.
func ReadPipelineFile(path string) (*PipelineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	var pf PipelineFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing pipeline file: %w", err)
	}
	if pf.Pipeline.OriginalQuery == "" {
		pf.Pipeline.OriginalQuery = pf.Query.Original
	}
	if len(pf.Pipeline.SubQueries) == 0 {
		pf.Pipeline.SubQueries = pf.Query.SubQueries
	}
	return &pf, nil
}
