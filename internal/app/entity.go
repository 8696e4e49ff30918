package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/signalwatch/internal/cli"
	"horse.fit/signalwatch/internal/db"
	"horse.fit/signalwatch/internal/entity"
)

func runEntity(args []string) int {
	if len(args) == 0 {
		printEntityUsage()
		return 2
	}
	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "upsert":
		return runEntityUpsert(args[1:])
	case "resolve":
		return runEntityResolve(args[1:])
	case "top":
		return runEntityTop(args[1:])
	case "help", "-h", "--help":
		printEntityUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown entity command: %s\n\n", args[0])
		printEntityUsage()
		return 2
	}
}

func printEntityUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  signalwatch entity upsert --type company --name \"Acme Corp\" [--alias \"Acme\" --source manual]")
	fmt.Fprintln(os.Stderr, "  signalwatch entity resolve --type company --name \"ACME\"")
	fmt.Fprintln(os.Stderr, "  signalwatch entity top [--type company] [--limit 20]")
}

func runEntityUpsert(args []string) int {
	fs := flag.NewFlagSet("entity upsert", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 20*time.Second, "Command timeout")
	entityType := fs.String("type", entity.TypeCompany, "Entity type")
	name := fs.String("name", "", "Entity display name")
	alias := fs.String("alias", "", "Optional alias to record")
	source := fs.String("source", "manual", "Alias provenance")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, code := openRuntime(ctx, envLoader, "entity upsert")
	if rt == nil {
		return code
	}
	defer rt.Close()

	svc := entity.NewService(rt.pool, rt.logger)
	row, err := svc.UpsertEntity(ctx, entity.UpsertInput{Type: *entityType, Name: *name})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Entity upsert failed: %v\n", err)
		return 1
	}

	var aliasRow *db.EntityAlias
	if strings.TrimSpace(*alias) != "" {
		aliasRow, err = svc.UpsertAlias(ctx, row.EntityID, *alias, *source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Alias upsert failed: %v\n", err)
			return 1
		}
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{"entity": row, "alias": aliasRow}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("entity_id=%d type=%s canonical_key=%s name=%q\n", row.EntityID, row.Type, row.CanonicalKey, row.Name)
	if aliasRow != nil {
		fmt.Printf("alias_id=%d alias_key=%s\n", aliasRow.AliasID, aliasRow.AliasKey)
	} else if strings.TrimSpace(*alias) != "" {
		fmt.Println("alias not recorded (redundant or already claimed)")
	}
	return 0
}

func runEntityResolve(args []string) int {
	fs := flag.NewFlagSet("entity resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 20*time.Second, "Command timeout")
	entityType := fs.String("type", entity.TypeCompany, "Entity type")
	name := fs.String("name", "", "Name or alias to resolve")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
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

	svc := entity.NewService(pool, zerolog.Nop())
	row, err := svc.Resolve(ctx, *entityType, *name)
	if err != nil {
		if db.IsNotFound(err) {
			fmt.Fprintf(os.Stderr, "No %s entity matches %q\n", strings.TrimSpace(*entityType), strings.TrimSpace(*name))
			return 1
		}
		fmt.Fprintf(os.Stderr, "Resolve failed: %v\n", err)
		return 1
	}
	if withAliases, err := pool.GetEntity(ctx, row.EntityID); err == nil {
		row = withAliases
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(row); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(row.Aliases)+1)
	rows = append(rows, []string{fmt.Sprintf("%d", row.EntityID), row.Type, row.CanonicalKey, row.Name, ""})
	for _, a := range row.Aliases {
		rows = append(rows, []string{"", "", a.AliasKey, a.Alias, a.Source})
	}
	if err := writeTable([]string{"entity_id", "type", "key", "name", "source"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runEntityTop(args []string) int {
	fs := flag.NewFlagSet("entity top", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	entityType := fs.String("type", "", "Optional entity type filter")
	limit := fs.Int("limit", 20, "Maximum rows")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	counts, err := pool.ListTopEntities(ctx, strings.ToLower(strings.TrimSpace(*entityType)), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list entities: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(counts); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{fmt.Sprintf("%d", c.EntityID), c.Type, truncateForTable(c.Name, 40), fmt.Sprintf("%d", c.Mentions)})
	}
	if err := writeTable([]string{"entity_id", "type", "name", "mentions"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
