package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joelkehle/recipe-importer/internal/matcher"
	"github.com/joelkehle/recipe-importer/internal/report"
)

func main() {
	inputPath := flag.String("input", "", "Path to saved match results JSON")
	outputPath := flag.String("output", "", "Path to write the PDF report")
	markdownPath := flag.String("markdown", "", "Optional path to write the markdown report")
	model := flag.String("model", "", "Model name to record in the report header")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("missing required -input")
	}
	if *outputPath == "" && *markdownPath == "" {
		log.Fatal("nothing to do: provide -output and/or -markdown")
	}

	results, err := matcher.LoadResults(*inputPath)
	if err != nil {
		log.Fatalf("load results: %v", err)
	}
	matcher.SortResults(results)

	md := report.BuildMarkdown(results, matcher.Summarize(results), report.RunMeta{
		Model:       *model,
		CompletedAt: time.Now(),
	})
	if *markdownPath != "" {
		if err := os.WriteFile(*markdownPath, []byte(md), 0o644); err != nil {
			log.Fatalf("write markdown: %v", err)
		}
	}
	if *outputPath == "" {
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pdf, err := report.NewChromiumPDFRenderer().Render(ctx, md)
	if err != nil {
		log.Fatalf("render pdf: %v", err)
	}
	if err := os.WriteFile(*outputPath, pdf, 0o644); err != nil {
		log.Fatalf("write pdf: %v", err)
	}
	log.Printf("render-match-report written path=%s bytes=%d", *outputPath, len(pdf))
}
