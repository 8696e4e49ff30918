package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/signalwatch/internal/cli"
	"horse.fit/signalwatch/internal/explain"
	"horse.fit/signalwatch/internal/globaltime"
	"horse.fit/signalwatch/internal/telemetry"
	"horse.fit/signalwatch/internal/trends"
)

func newTrendService(rt *commandRuntime, metrics *telemetry.Metrics, stop trends.StopChecker) (*trends.Service, error) {
	registry := explain.NewRegistryFromConfig(rt.cfg)
	explainer, err := registry.Provider("")
	if err != nil {
		return nil, fmt.Errorf("resolve explanation provider: %w", err)
	}
	return trends.NewService(rt.pool, explainer, rt.logger, trends.Options{
		Policy: trends.Policy{
			MinVolume:       rt.cfg.TrendMinVolume,
			BaselineMin:     rt.cfg.TrendBaselineMin,
			MinDeltaPercent: rt.cfg.TrendMinDeltaPercent,
		},
		FreshnessWindowDays: rt.cfg.FreshnessWindowDays,
		Metrics:             metrics,
		Stop:                stop,
	}), nil
}

func runCaptureMetrics(args []string) int {
	fs := flag.NewFlagSet("capture-metrics", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, code := openRuntime(ctx, envLoader, "capture-metrics")
	if rt == nil {
		return code
	}
	defer rt.Close()

	started := globaltime.UTC()
	metrics := telemetry.NewMetrics()
	defer finishRun(rt, metrics, "capture_metrics", started)

	svc, err := newTrendService(rt, metrics, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	result, err := svc.CaptureSignalMetrics(ctx)
	if err != nil {
		rt.logger.Error().Err(err).Msg("capture-metrics failed")
		fmt.Fprintf(os.Stderr, "Capture metrics failed: %v\n", err)
		return 1
	}

	fmt.Printf("capture-metrics run_uuid=%s scopes_processed=%d snapshots_created=%d\n",
		result.RunUUID, result.ScopesProcessed, result.SnapshotsCreated)
	return 0
}

func runGenerateTrends(args []string) int {
	fs := flag.NewFlagSet("generate-trends", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, code := openRuntime(ctx, envLoader, "generate-trends")
	if rt == nil {
		return code
	}
	defer rt.Close()

	stop, release := watchStopSignals(rt.logger)
	defer release()

	started := globaltime.UTC()
	metrics := telemetry.NewMetrics()
	defer finishRun(rt, metrics, "generate_trends", started)

	svc, err := newTrendService(rt, metrics, stop)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	result, err := svc.GenerateTrends(ctx)
	if err != nil {
		rt.logger.Error().Err(err).Str("run_uuid", result.RunUUID).Msg("generate-trends failed")
		fmt.Fprintf(os.Stderr, "Generate trends failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		fmt.Printf("generate-trends run_uuid=%s trends_generated=%d errors=%d stopped=%t\n",
			result.RunUUID, result.TrendsGenerated, result.Errors, result.Stopped)
		rows := make([][]string, 0, len(result.Outcomes))
		for _, o := range result.Outcomes {
			rows = append(rows, []string{string(o.ScopeType), truncateForTable(o.ScopeID, 40), string(o.Outcome), string(o.Direction), o.Error})
		}
		if err := writeTable([]string{"scope_type", "scope_id", "outcome", "direction", "error"}, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render outcomes: %v\n", err)
			return 1
		}
	}

	if result.Errors > 0 {
		return 1
	}
	return 0
}

func runTrends(args []string) int {
	fs := flag.NewFlagSet("trends", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	scope := fs.String("scope", "", "Optional scope type filter: industry or theme")
	limit := fs.Int("limit", 50, "Maximum rows")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	scopeType, err := parseScopeFlag(*scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid scope: %v\n", err)
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	rows, err := pool.LatestTrends(ctx, scopeType, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list trends: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		tableRows = append(tableRows, []string{
			row.ScopeType,
			truncateForTable(row.ScopeID, 30),
			row.Direction,
			formatFloatPtr(row.Magnitude),
			strconv.Itoa(row.Confidence),
			fmt.Sprintf("%d/%d", row.CurrentCount, row.PrevCount),
			truncateForTable(strings.Join(decodeStringList(row.Themes), ","), 40),
			truncateForTable(row.Explanation, 80),
		})
	}
	if err := writeTable([]string{"scope_type", "scope_id", "direction", "magnitude", "confidence", "current/prev", "themes", "explanation"}, tableRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runSnapshots(args []string) int {
	fs := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	scope := fs.String("scope", "", "Optional scope type filter: industry or theme")
	limit := fs.Int("limit", 100, "Maximum rows")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	scopeType, err := parseScopeFlag(*scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid scope: %v\n", err)
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	rows, err := pool.LatestMetricSnapshots(ctx, scopeType, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list snapshots: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		tableRows = append(tableRows, []string{
			row.ScopeType,
			truncateForTable(row.ScopeID, 30),
			row.Period,
			strconv.Itoa(row.CurrentCount),
			formatIntPtr(row.PrevCount),
			formatFloatPtr(row.DeltaPercent),
			formatUTCTimestamp(row.CapturedAt),
		})
	}
	if err := writeTable([]string{"scope_type", "scope_id", "period", "current", "prev", "delta_pct", "captured_at"}, tableRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func parseScopeFlag(raw string) (string, error) {
	scope := strings.ToLower(strings.TrimSpace(raw))
	switch scope {
	case "", string(trends.ScopeIndustry), string(trends.ScopeTheme):
		return scope, nil
	default:
		return "", fmt.Errorf("--scope must be industry or theme")
	}
}

func decodeStringList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
