package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/gollm/gollm-chat/internal/api"
	"github.com/gollm/gollm-chat/internal/compare"
)

// compareRunSchema validates a comparison run file before anything is
// dispatched, so malformed runs fail with a readable message instead of a
// backend round trip.
const compareRunSchema = `{
	"type": "object",
	"required": ["variants"],
	"properties": {
		"variants": {
			"type": "array",
			"minItems": 2,
			"items": {
				"type": "object",
				"required": ["provider", "model", "tpl"],
				"properties": {
					"provider": {"type": "string", "minLength": 1},
					"model":    {"type": "string", "minLength": 1},
					"tpl":      {"type": "string", "minLength": 1},
					"version":  {"type": "integer", "minimum": 0}
				}
			}
		},
		"vars": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	}
}`

type compareRunFile struct {
	Variants []compare.Variant `json:"variants"`
	Vars     map[string]string `json:"vars"`
}

func runCompareCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	baseURL, _, _, statePath, debug := commonFlags(fs)
	file := fs.String("file", "", "JSON file with {variants, vars}")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("compare requires -file")
	}

	env, err := prepareRuntimeEnv(ctx, *baseURL, "", "", *statePath, *debug)
	if err != nil {
		return err
	}
	defer env.Close()

	run, err := loadCompareRun(*file)
	if err != nil {
		return err
	}

	runner := compare.NewRunner(env.client)
	result, err := runner.Run(ctx, run.Variants, run.Vars)
	if err != nil {
		return err
	}

	printComparison(result)
	return nil
}

func loadCompareRun(path string) (*compareRunFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(compareRunSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate run file: %w", err)
	}
	if !res.Valid() {
		var msgs []string
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid run file: %s", strings.Join(msgs, "; "))
	}

	var run compareRunFile
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("failed to parse run file: %w", err)
	}
	return &run, nil
}

func printComparison(result *compare.Result) {
	bestKey := result.Best.Key()
	fmt.Printf("%-40s %8s %10s\n", "VARIANT", "SCORE", "LATENCY")
	for key, score := range result.Scores {
		marker := " "
		if key == bestKey {
			marker = "*"
		}
		fmt.Printf("%s %-38s %8.2f %9.2fs\n", marker, key, score, result.Latencies[key])
	}
	fmt.Printf("\nbest: %s\n\n%s\n", bestKey, result.Answers[bestKey])
}

func runTemplatesCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("templates", flag.ExitOnError)
	baseURL, _, _, statePath, debug := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := prepareRuntimeEnv(ctx, *baseURL, "", "", *statePath, *debug)
	if err != nil {
		return err
	}
	defer env.Close()

	rest := fs.Args()
	if len(rest) == 0 {
		rest = []string{"list"}
	}

	switch rest[0] {
	case "list":
		list, err := env.client.ListTemplates(ctx)
		if err != nil {
			return err
		}
		for _, t := range list {
			fmt.Printf("%-24s v%-3d %s\n", t.Name, t.Version, firstLine(t.Prompt))
		}
		return nil
	case "show":
		if len(rest) < 2 {
			return fmt.Errorf("usage: templates show <name> [version]")
		}
		version := 0
		if len(rest) >= 3 {
			fmt.Sscanf(rest[2], "%d", &version)
		}
		t, err := env.client.GetTemplate(ctx, rest[1], version)
		if err != nil {
			return err
		}
		if t.System != "" {
			fmt.Printf("# system\n%s\n\n", t.System)
		}
		fmt.Printf("# prompt (v%d)\n%s\n", t.Version, t.Prompt)
		return nil
	case "save":
		if len(rest) < 2 {
			return fmt.Errorf("usage: templates save <file.json>")
		}
		raw, err := os.ReadFile(rest[1])
		if err != nil {
			return fmt.Errorf("failed to read template file: %w", err)
		}
		var t api.Template
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("failed to parse template file: %w", err)
		}
		if err := env.client.SaveTemplate(ctx, t); err != nil {
			return err
		}
		fmt.Printf("saved %s v%d\n", t.Name, t.Version)
		return nil
	case "delete":
		if len(rest) < 3 {
			return fmt.Errorf("usage: templates delete <name> <version>")
		}
		version := 0
		fmt.Sscanf(rest[2], "%d", &version)
		if err := env.client.DeleteTemplate(ctx, rest[1], version); err != nil {
			return err
		}
		fmt.Printf("deleted %s v%d\n", rest[1], version)
		return nil
	default:
		return fmt.Errorf("unknown templates subcommand %q", rest[0])
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
