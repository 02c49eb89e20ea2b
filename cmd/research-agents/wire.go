// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/classify"
	"github.com/pdiddy/research-agents/internal/clean"
	"github.com/pdiddy/research-agents/internal/expand"
	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/grade"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/internal/orchestrator"
	"github.com/pdiddy/research-agents/internal/policy"
	"github.com/pdiddy/research-agents/internal/quality"
	"github.com/pdiddy/research-agents/internal/report"
	"github.com/pdiddy/research-agents/internal/research"
	"github.com/pdiddy/research-agents/internal/scrape"
	"github.com/pdiddy/research-agents/internal/search"
	"github.com/pdiddy/research-agents/internal/weather"
	"github.com/pdiddy/research-agents/internal/youtube"
	"github.com/pdiddy/research-agents/pkg/types"
)

// stack is the wired orchestrator plus resources to release.
type stack struct {
	orch    *orchestrator.Orchestrator
	closers []func() error
}

func (s *stack) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			logger.Warn("closing resource", zap.Error(err))
		}
	}
}

// buildStack wires every component from cfg. A non-nil loaded pipeline
// replaces live web research.
func buildStack(ctx context.Context, cfg types.Config, loaded *types.ResearchPipeline) (*stack, error) {
	s := &stack{}
	client := &http.Client{Timeout: cfg.Search.Timeout}

	var ai llm.Client
	if cfg.AI.APIKey != "" {
		ai = llm.NewRetrying(llm.NewOpenAIClient(cfg.AI), cfg.AI.MaxRetries, logger)
	}

	pol := policy.Default()
	if cfg.Scrape.PolicyFile != "" {
		p, err := policy.Load(cfg.Scrape.PolicyFile)
		if err != nil {
			return nil, fault.New(fault.Config, "policy", err)
		}
		pol = p
	}

	reg := orchestrator.NewRegistry()
	switch {
	case loaded != nil:
		reg.Register(orchestrator.LoadedResearch(loaded))
	case ai == nil:
		reg.Register(orchestrator.Capability{
			Name:        orchestrator.CapResearch,
			Description: "web research (unavailable: no OpenAI key)",
			Run: func(context.Context, types.JobRequest) (any, error) {
				return nil, fault.Errorf(fault.Config, "research", "OpenAI API key not configured")
			},
		})
	default:
		coord, err := buildCoordinator(ctx, s, cfg, client, ai, pol)
		if err != nil {
			s.Close()
			return nil, err
		}
		reg.Register(orchestrator.ResearchCapability(coord, nil))
	}
	reg.Register(orchestrator.YouTubeCapability(youtube.New(nil, cfg.Collectors, cfg.Search.MaxRetries, logger)))
	reg.Register(orchestrator.WeatherCapability(weather.New(nil, cfg.Collectors, cfg.Search.MaxRetries, logger)))

	opts := orchestrator.Options{
		StateDir:   cfg.StateDir,
		Quality:    cfg.Report.QualityLevel,
		Classifier: classify.New(ai, cfg.Classifier, logger),
	}
	var rep orchestrator.Reporter
	if ai != nil {
		rep = report.New(ai, cfg.Report, logger)
		if cfg.LLMIntent {
			opts.IntentClient = ai
		}
	}
	s.orch = orchestrator.New(reg, rep, opts, logger)
	return s, nil
}

func buildCoordinator(ctx context.Context, s *stack, cfg types.Config, client *http.Client, ai llm.Client, pol *policy.Policy) (*research.Coordinator, error) {
	var store scrape.FailureStore
	if cfg.Scrape.FailureCachePath != "" {
		st, err := scrape.NewSQLiteStore(cfg.Scrape.FailureCachePath)
		if err != nil {
			return nil, fault.New(fault.Config, "failure cache", err)
		}
		s.closers = append(s.closers, st.Close)
		store = st
	}
	failures, err := scrape.NewFailureCache(ctx, store, logger)
	if err != nil {
		return nil, err
	}

	var providers []search.Provider
	if cfg.Search.EnableTavily {
		providers = append(providers, search.NewTavily(client, cfg.Search))
	}
	if cfg.Search.EnableSerper {
		providers = append(providers, search.NewSerper(client, cfg.Search))
	}

	stages := research.Stages{
		Expander:  expand.New(ai, cfg.Research.SubQueryCount, logger),
		Providers: providers,
		Grader:    grade.New(pol, cfg.Research.TavilyScrapingThreshold),
		Scraper:   scrape.New(cfg.Scrape, nil, pol, failures, nil, logger),
		Filter:    quality.New(pol, cfg.Research.GarbageFilterThreshold, logger),
		Cleaner:   clean.New(ai, clean.OptionsFrom(cfg.Research), logger),
	}
	opts := research.OptionsFrom(cfg.Search, cfg.Research)
	opts.MaxChars = cfg.Scrape.MaxChars
	return research.New(stages, opts, logger), nil
}
