// runstage invokes a single stage function directly and validates its output
// against the catalog contract. Debugging aid for stage deployments:
//
//	runstage -stage outline -input input.json -base-url http://localhost:9090
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/gateway"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/pipeline"
)

func main() {
	stage := flag.String("stage", "", "stage name to invoke (required)")
	inputPath := flag.String("input", "", "path to a JSON input file (default: stdin)")
	baseURL := flag.String("base-url", "http://localhost:9090", "stage endpoint base URL")
	endpoint := flag.String("endpoint", "", "full endpoint URL, overrides -base-url")
	timeout := flag.Duration("timeout", 90*time.Second, "per-call timeout")
	pipelineFile := flag.String("pipeline", "", "optional pipeline definition YAML")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *stage == "" {
		fmt.Fprintln(os.Stderr, "usage: runstage -stage <name> [-input file.json]")
		os.Exit(2)
	}

	def := pipeline.Default()
	if *pipelineFile != "" {
		var err error
		if def, err = pipeline.Load(*pipelineFile); err != nil {
			logger.Error("load pipeline definition", "error", err)
			os.Exit(1)
		}
	}
	if _, ok := def.Stage(*stage); !ok {
		logger.Error("unknown stage", "stage", *stage, "known", def.StageNames())
		os.Exit(1)
	}

	var input any
	src := os.Stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			logger.Error("open input", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		src = f
	}
	if err := json.NewDecoder(src).Decode(&input); err != nil {
		logger.Error("decode input JSON", "error", err)
		os.Exit(1)
	}

	cfg := gateway.Config{BaseURL: *baseURL}
	if *endpoint != "" {
		cfg.Endpoints = map[string]string{*stage: *endpoint}
	}
	gw := gateway.New(cfg, nil, logger)

	raw, err := gw.Invoke(context.Background(), *stage, input, *timeout)
	if err != nil {
		logger.Error("stage invocation failed", "stage", *stage, "error", err)
		os.Exit(1)
	}

	if res := def.Schema(*stage).Validate(raw); !res.OK {
		logger.Warn("output violates stage contract", "stage", *stage)
		for _, v := range res.Violations {
			fmt.Fprintf(os.Stderr, "  violation: %s\n", v)
		}
	}

	var pretty any
	if err := json.Unmarshal(raw, &pretty); err == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(pretty)
		return
	}
	os.Stdout.Write(raw)
}
