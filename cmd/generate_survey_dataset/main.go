package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ahrav/go-affinity/internal/testutils"
)

func main() {
	var (
		respondents = flag.Int("respondents", 60, "Number of respondents to generate")
		seed        = flag.Int64("seed", 0, "Random seed (0 uses the current time)")
		outputPath  = flag.String("output", "testdata/surveys/weekend.yaml", "Output file path (.yaml or .json)")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	dataset := testutils.GenerateSurveyDataset(*respondents, *seed)

	if err := testutils.ValidateSurveyDataset(dataset); err != nil {
		log.Fatalf("Generated dataset is invalid: %v", err)
	}
	if err := testutils.SaveSurveyDataset(dataset, *outputPath); err != nil {
		log.Fatalf("Failed to save dataset: %v", err)
	}

	stats := testutils.ComputeDatasetStatistics(dataset)

	fmt.Printf("Generated survey dataset:\n")
	fmt.Printf("- Path: %s\n", *outputPath)
	fmt.Printf("- Form: %s\n", dataset.Form.ID)
	fmt.Printf("- Seed: %d\n", *seed)
	fmt.Printf("- Respondents: %d\n", stats.Respondents)
	fmt.Printf("- Questions by type: %v\n", stats.Questions)
	fmt.Printf("- Skipped answers: %d of %d\n", stats.Skipped, stats.Responses)
}
