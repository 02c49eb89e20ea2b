// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/config"
	"github.com/pdiddy/research-agents/internal/orchestrator"
	"github.com/pdiddy/research-agents/internal/report"
	"github.com/pdiddy/research-agents/internal/search"
	"github.com/pdiddy/research-agents/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:     "research [request...]",
	Aliases: []string{"run"},
	Short:   "Run one request through the orchestrator",
	Long: `Research parses the request, runs the matching collectors (web research,
YouTube, weather) in parallel, and writes a report. Progress streams to
stderr; the report goes to stdout and, with --out, to a markdown file.

A saved pipeline (--load) replaces live searching, so the report can be
rewritten without querying providers again.`,
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().String("query", "", "request text (or pass it as arguments)")
	researchCmd.Flags().String("save", "", "write the research pipeline to this YAML file")
	researchCmd.Flags().String("load", "", "reuse a pipeline saved with --save instead of searching")
	researchCmd.Flags().String("out", "", "directory for the report markdown (default from config)")
	researchCmd.Flags().String("state-dir", "", "directory for master state documents (default from config)")
	researchCmd.Flags().String("quality", "", "report quality: standard, enhanced, premium")
	researchCmd.Flags().Bool("json", false, "print the final state as JSON instead of the report")
	researchCmd.Flags().Bool("web", false, "launch the web UI")

	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	if web, _ := cmd.Flags().GetBool("web"); web {
		return &exitError{code: 2, err: errors.New("the web UI is served separately; use --query to run from the command line")}
	}

	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		query = strings.Join(args, " ")
	}
	var loaded *types.ResearchPipeline
	if path, _ := cmd.Flags().GetString("load"); path != "" {
		pf, err := search.ReadPipelineFile(path)
		if err != nil {
			return err
		}
		loaded = &pf.Pipeline
		if query == "" {
			query = pf.Query.Original
		}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("provide a request with --query or as arguments")
	}

	run := cfg
	if dir, _ := cmd.Flags().GetString("state-dir"); dir != "" {
		run.StateDir = dir
	}
	if dir, _ := cmd.Flags().GetString("out"); dir != "" {
		run.Report.OutputDir = dir
	}
	if q, _ := cmd.Flags().GetString("quality"); q != "" {
		run.Report.QualityLevel = types.QualityLevel(strings.ToLower(q))
		if err := config.Validate(run); err != nil {
			return err
		}
	}

	job := orchestrator.ParseRequest(query)
	needs := job.Capabilities
	if loaded != nil {
		job.Capabilities = []string{orchestrator.CapResearch}
		job.JobType = types.JobResearch
		needs = nil
	}
	if err := config.Require(run, needs); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, run, loaded)
	if err != nil {
		return err
	}
	defer s.Close()

	var exec *orchestrator.Execution
	if loaded != nil {
		exec = s.orch.RunJob(ctx, job)
	} else {
		exec = s.orch.Run(ctx, query)
	}
	for u := range exec.Updates() {
		printUpdate(os.Stderr, u)
	}
	st, err := exec.Wait()
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("save"); path != "" && st.ResearchData != nil && loaded == nil {
		if err := search.WritePipelineFile(path, st.ResearchData, run.Search, run.Research); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved pipeline to %s\n", path)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			return err
		}
	} else if st.ReportData != nil {
		fmt.Println(st.ReportData.Text)
	} else if st.ResearchData != nil {
		search.FormatTable(st.ResearchData, os.Stdout)
	}

	if st.ReportData != nil && run.Report.OutputDir != "" {
		path, err := report.Save(run.Report.OutputDir, st.ReportData, query, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
	}

	for _, e := range st.Errors {
		logger.Warn("agent error", zap.String("agent", e.Agent), zap.String("message", e.Message))
	}
	if st.ReportData == nil {
		return fmt.Errorf("no report produced (%d error(s))", len(st.Errors))
	}
	return nil
}

// printUpdate renders one progress line.
func printUpdate(w io.Writer, u types.StreamingUpdate) {
	marker := map[types.UpdateType]string{
		types.UpdateStatus:        "..",
		types.UpdatePartialResult: "ok",
		types.UpdateFinalResult:   "==",
		types.UpdateError:         "!!",
	}[u.Type]
	fmt.Fprintf(w, "[%s] %-17s %s\n", marker, strings.TrimSuffix(u.AgentName, "_agent"), u.Message)
}
