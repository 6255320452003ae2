package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"phishguard/config"
	"phishguard/logging"
	"phishguard/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	input := flag.String("input", "", "raw CSV (default: first *.csv in data_dir)")
	output := flag.String("output", "", "cleaned CSV (default: dataset.output from config)")
	dataDir := flag.String("data_dir", "", "directory searched when -input is empty")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *output == "" {
		*output = cfg.Dataset.Output
	}
	if *dataDir == "" {
		*dataDir = cfg.Dataset.DataDir
	}
	if *input == "" {
		*input = cfg.Dataset.Input
	}
	if *input == "" {
		*input, err = pipeline.FindInputCSV(*dataDir, *output)
		if err != nil {
			logger.Fatal("no input dataset", zap.Error(err))
		}
		logger.Info("detected input CSV", zap.String("path", *input))
	}

	stats, err := pipeline.NewDatasetPreparer(logger.Logger).PrepareFile(*input, *output)
	if err != nil {
		logger.Fatal("failed to prepare dataset", zap.String("input", *input), zap.Error(err))
	}

	fmt.Printf("saved %s\n", *output)
	fmt.Printf("total rows: %d (duplicates %d, malformed %d, phishing %d)\n",
		stats.Kept, stats.Duplicates, stats.Malformed, stats.Phishing)
}
