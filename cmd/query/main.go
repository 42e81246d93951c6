// Command query runs a single research question against a built index and
// prints the synthesized answer, the agent trace, and the citations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/docstore"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/quant"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/rag"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/semantic"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/nim"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	var (
		indexFile = flag.String("index", envOr("INDEX_FILE", "./index/index.jsonl"), "JSONL index file")
		dataRoot  = flag.String("data", envOr("DATA_ROOT", "./data"), "document root for metric workbooks")
		topK      = flag.Int("topk", 5, "chunks to retrieve")
		asJSON    = flag.Bool("json", false, "print the full result envelope as JSON")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	question := strings.Join(flag.Args(), " ")
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: query [flags] <question>")
		os.Exit(2)
	}

	if err := run(*indexFile, *dataRoot, *topK, *asJSON, question, logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(indexFile, dataRoot string, topK int, asJSON bool, question string, logger *slog.Logger) error {
	idx, err := semantic.Load(indexFile)
	if err != nil {
		return err
	}

	nimCfg := nim.DefaultConfig()
	nimCfg.EmbedBaseURL = envOr("EMBED_BASE_URL", nimCfg.EmbedBaseURL)
	nimCfg.LLMBaseURL = envOr("LLM_BASE_URL", nimCfg.LLMBaseURL)
	gateway := nim.NewClient(nimCfg, nim.WithLogger(logger))

	loader := quant.NewLoader(docstore.NewFS(dataRoot, ".xlsx"), logger)
	svc := rag.New(gateway, gateway, idx, loader, rag.Options{TopK: topK}, logger, nil)

	result, err := svc.Query(context.Background(), question)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(result.Answer)
	fmt.Println()
	fmt.Println("--- Agent Trace ---")
	for _, step := range result.Trace {
		fmt.Printf("%-22s %-40s %s (%dms)\n", step.Agent, step.Action, step.OutputSummary, step.DurationMS)
	}
	if len(result.Citations) > 0 {
		fmt.Println()
		fmt.Println("--- Citations ---")
		for _, c := range result.Citations {
			fmt.Printf("[%s/%d] score=%.3f %s\n", c.DocID, c.ChunkID, c.Score, firstN(c.Text, 80))
		}
	}
	fmt.Printf("\ntotal: %dms\n", result.TotalMS)
	return nil
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
