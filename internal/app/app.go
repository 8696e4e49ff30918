package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "evaluate":
		return runEvaluate(args[1:])
	case "score":
		return runScore(args[1:])
	case "entity":
		return runEntity(args[1:])
	case "capture-metrics":
		return runCaptureMetrics(args[1:])
	case "generate-trends":
		return runGenerateTrends(args[1:])
	case "trends":
		return runTrends(args[1:])
	case "snapshots":
		return runSnapshots(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "signalwatch CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  signalwatch <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health           Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  evaluate         Dedup, score and store a candidate signal file")
	fmt.Fprintln(os.Stderr, "  score            Compute priority and format for one candidate (offline)")
	fmt.Fprintln(os.Stderr, "  entity           Upsert, resolve or list canonical entities")
	fmt.Fprintln(os.Stderr, "  capture-metrics  Append 7d/30d metric snapshots per industry and theme")
	fmt.Fprintln(os.Stderr, "  generate-trends  Classify scopes and store trend rows")
	fmt.Fprintln(os.Stderr, "  trends           List trends from the latest run")
	fmt.Fprintln(os.Stderr, "  snapshots        List metric snapshots from the latest run")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"signalwatch <command> -h\" for command-specific flags.")
}
