// Command affinity computes affinity groups for a survey dataset file and
// writes the exported result.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ahrav/go-affinity/infrastructure/export"
	"github.com/ahrav/go-affinity/infrastructure/storage/memstore"
	"github.com/ahrav/go-affinity/internal/application"
	"github.com/ahrav/go-affinity/internal/testutils"
)

func main() {
	var (
		datasetPath = flag.String("dataset", "", "Survey dataset file (.yaml or .json)")
		configPath  = flag.String("config", "", "Optional YAML config file")
		threshold   = flag.Float64("threshold", 0, "Similarity threshold in (0, 1]; overrides the config")
		strategy    = flag.String("text-strategy", "", "token_overlap or levenshtein; overrides the config")
		workers     = flag.Int("workers", -1, "Parallel matrix workers; overrides the config")
		format      = flag.String("format", export.FormatJSON, "Output format: json or yaml")
		outPath     = flag.String("out", "", "Output file (default stdout)")
	)
	flag.Parse()

	if *datasetPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := application.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *threshold != 0 {
		cfg.Affinity.Threshold = *threshold
	}
	if *strategy != "" {
		cfg.Affinity.TextStrategy = *strategy
	}
	if *workers >= 0 {
		cfg.Affinity.Workers = *workers
	}

	if err := run(context.Background(), cfg.Affinity, *datasetPath, *format, *outPath); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg application.AffinityConfig, datasetPath, format, outPath string) error {
	dataset, err := testutils.LoadSurveyDataset(datasetPath)
	if err != nil {
		return err
	}

	store := memstore.New()
	if err := dataset.Seed(ctx, store); err != nil {
		return err
	}

	svc, err := application.NewAffinityServiceFromConfig(ctx, cfg, application.ServiceDeps{
		Forms:     store,
		Answers:   store,
		Profiles:  store,
		Exporters: export.All(),
	})
	if err != nil {
		return err
	}

	result, err := svc.ComputeAffinity(ctx, dataset.Form.ID)
	if err != nil {
		return fmt.Errorf("failed to compute affinity for form %s: %w", dataset.Form.ID, err)
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := svc.ExportResult(ctx, *result, w, format); err != nil {
		return err
	}
	if outPath != "" {
		log.Printf("Wrote %d groups for %d respondents to %s", len(result.Groups), len(dataset.Answers), outPath)
	}
	return nil
}
