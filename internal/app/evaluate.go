package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/signalwatch/internal/cli"
	"horse.fit/signalwatch/internal/db"
	"horse.fit/signalwatch/internal/dedup"
	"horse.fit/signalwatch/internal/entity"
	"horse.fit/signalwatch/internal/globaltime"
	"horse.fit/signalwatch/internal/payloadschema"
	"horse.fit/signalwatch/internal/pipeline"
	"horse.fit/signalwatch/internal/scoring"
	"horse.fit/signalwatch/internal/telemetry"
)

func runEvaluate(args []string) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	file := fs.String("file", "", "Path to a candidate batch JSON file")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	raw, err := os.ReadFile(strings.TrimSpace(*file))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read candidate file: %v\n", err)
		return 1
	}
	batch, err := payloadschema.ValidateCandidateBatch(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid candidate file: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, code := openRuntime(ctx, envLoader, "evaluate")
	if rt == nil {
		return code
	}
	defer rt.Close()

	weights, err := loadWeights(rt.cfg.ScoringWeightsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid scoring weights: %v\n", err)
		return 1
	}

	stop, release := watchStopSignals(rt.logger)
	defer release()

	started := globaltime.UTC()
	metrics := telemetry.NewMetrics()
	defer finishRun(rt, metrics, "evaluate", started)

	for _, company := range batch.Companies {
		row := db.Company{CompanyID: company.CompanyID, Name: company.Name, Industry: company.Industry}
		if err := rt.pool.UpsertCompany(ctx, &row); err != nil {
			rt.logger.Error().Err(err).Int64("company_id", company.CompanyID).Msg("company upsert failed")
			fmt.Fprintf(os.Stderr, "Failed to store company %d: %v\n", company.CompanyID, err)
			return 1
		}
	}

	warnUnknownCompanies(ctx, rt, batch)

	entities := entity.NewService(rt.pool, rt.logger)
	svc := pipeline.NewService(rt.pool, entities, rt.logger, pipeline.Options{
		Thresholds: dedup.Thresholds{
			Jaccard:  rt.cfg.NearDupJaccardThreshold,
			SameHost: rt.cfg.NearDupSameHostThreshold,
		},
		Weights:      &weights,
		LookbackDays: rt.cfg.DedupLookbackDays,
		Concurrency:  rt.cfg.BatchConcurrency,
		Metrics:      metrics,
	})

	results, progress, err := svc.EvaluateBatches(ctx, pipeline.FromPayload(batch.Candidates), stop)
	if err != nil && !progress.Stopped {
		rt.logger.Error().Err(err).Str("run_uuid", progress.RunUUID).Msg("evaluate failed")
		fmt.Fprintf(os.Stderr, "Evaluate failed: %v\n", err)
		return 1
	}

	rt.logger.Info().
		Str("run_uuid", progress.RunUUID).
		Int("total", progress.Total).
		Int("accepted", progress.Accepted).
		Int("exact_duplicates", progress.ExactDuplicates).
		Int("near_duplicates", progress.NearDuplicates).
		Bool("stopped", progress.Stopped).
		Msg("evaluate completed")

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{"progress": progress, "batches": results}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		fmt.Printf("evaluate run_uuid=%s total=%d processed=%d accepted=%d exact_duplicates=%d near_duplicates=%d stopped=%t\n",
			progress.RunUUID, progress.Total, progress.Processed, progress.Accepted,
			progress.ExactDuplicates, progress.NearDuplicates, progress.Stopped)
		if err := writeTable(outcomeHeaders, outcomeRows(results)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render outcomes: %v\n", err)
			return 1
		}
		counts, err := rt.pool.CountDedupDecisions(ctx, progress.RunUUID)
		if err != nil {
			rt.logger.Warn().Err(err).Str("run_uuid", progress.RunUUID).Msg("failed to read dedup audit counts")
		} else {
			fmt.Println()
			rows := make([][]string, 0, len(counts))
			for _, c := range counts {
				rows = append(rows, []string{c.Decision, c.Method, fmt.Sprintf("%d", c.Count)})
			}
			if err := writeTable([]string{"decision", "method", "audited"}, rows); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to render audit counts: %v\n", err)
				return 1
			}
		}
	}

	if progress.Stopped {
		return 1
	}
	return 0
}

var outcomeHeaders = []string{"company", "decision", "method", "signal", "matched", "priority", "format", "title"}

func outcomeRows(results []pipeline.BatchResult) [][]string {
	rows := make([][]string, 0)
	for _, batch := range results {
		for _, outcome := range batch.Outcomes {
			priority := ""
			if outcome.PriorityScore != nil {
				priority = fmt.Sprintf("%d %s", *outcome.PriorityScore, outcome.PriorityLabel)
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", batch.CompanyID),
				string(outcome.Decision),
				outcome.Method,
				formatInt64Ptr(outcome.SignalID),
				formatInt64Ptr(outcome.MatchedSignalID),
				priority,
				outcome.RecommendedFormat,
				truncateForTable(outcome.Title, 60),
			})
		}
	}
	return rows
}

// warnUnknownCompanies logs candidates whose company is neither in the file
// nor stored; their signals still evaluate but never reach an industry scope.
func warnUnknownCompanies(ctx context.Context, rt *commandRuntime, batch *payloadschema.CandidateBatch) {
	known := make(map[int64]struct{}, len(batch.Companies))
	for _, c := range batch.Companies {
		known[c.CompanyID] = struct{}{}
	}
	for _, c := range batch.Candidates {
		if _, ok := known[c.CompanyID]; ok {
			continue
		}
		known[c.CompanyID] = struct{}{}
		_, err := rt.pool.GetCompany(ctx, c.CompanyID)
		switch {
		case db.IsNotFound(err):
			rt.logger.Warn().Int64("company_id", c.CompanyID).Msg("candidates reference an unknown company")
		case err != nil:
			rt.logger.Warn().Err(err).Int64("company_id", c.CompanyID).Msg("company lookup failed")
		}
	}
}

func loadWeights(path string) (scoring.Weights, error) {
	if strings.TrimSpace(path) == "" {
		return scoring.DefaultWeights(), nil
	}
	return scoring.LoadWeightsFile(path)
}
