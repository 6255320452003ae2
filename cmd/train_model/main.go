package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"phishguard/config"
	"phishguard/db"
	"phishguard/logging"
	"phishguard/ml"
	"phishguard/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	datasetPath := flag.String("dataset", "", "cleaned url,label CSV (default: dataset.output from config)")
	modelDir := flag.String("model_dir", "", "artifact output dir (default: model.dir from config)")
	useSample := flag.Bool("sample", false, "train on the built-in sample urls")
	workers := flag.Int("workers", 0, "parallel tree builders (0 = GOMAXPROCS)")
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

	if *modelDir == "" {
		*modelDir = cfg.Model.Dir
	}
	if *datasetPath == "" {
		*datasetPath = cfg.Dataset.Output
	}
	if *workers == 0 {
		*workers = cfg.Training.Workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataset, err := loadDataset(*datasetPath, *useSample, cfg.Dataset.DataDir, logger.Logger)
	if err != nil {
		logger.Fatal("failed to load dataset", zap.String("path", *datasetPath), zap.Error(err))
	}

	trainer := ml.NewTrainer(ml.TrainerConfig{
		NumTrees:  cfg.Training.NumTrees,
		Seed:      cfg.Training.Seed,
		TestRatio: cfg.Training.TestRatio,
		MaxDepth:  cfg.Training.MaxDepth,
		Workers:   *workers,
	}, logger.Logger)

	result, err := trainer.Train(ctx, dataset)
	if err != nil {
		var dsErr *ml.DatasetError
		if errors.As(err, &dsErr) {
			logger.Fatal("dataset rejected, no artifact written", zap.Error(err))
		}
		logger.Fatal("training failed", zap.Error(err))
	}

	if err := ml.SaveArtifact(*modelDir, result.Forest, result.Schema); err != nil {
		logger.Fatal("failed to save model", zap.Error(err))
	}
	modelPath, schemaPath := ml.ArtifactPaths(*modelDir)
	logger.Info("model saved", zap.String("model", modelPath), zap.String("schema", schemaPath))

	recordRun(ctx, cfg.Database.Path, modelPath, result, logger.Logger)

	if result.AUCDefined {
		fmt.Printf("ROC-AUC: %.3f\n", result.AUC)
	} else {
		fmt.Println("ROC-AUC: undefined (single class in test split)")
	}
	fmt.Printf("model saved to %s\n", modelPath)
}

// loadDataset reads path, or the seed urls when sample is set. The seed set
// is also written to dataDir/sample_urls.csv when that file is absent.
func loadDataset(path string, sample bool, dataDir string, logger *zap.Logger) (ml.Dataset, error) {
	if !sample {
		return pipeline.LoadDataset(path)
	}

	dataset := pipeline.SampleDataset()
	samplePath := filepath.Join(dataDir, "sample_urls.csv")
	if _, err := os.Stat(samplePath); errors.Is(err, os.ErrNotExist) {
		if err := pipeline.WriteDataset(samplePath, dataset); err != nil {
			logger.Warn("failed to write sample dataset", zap.String("path", samplePath), zap.Error(err))
		} else {
			logger.Info("sample dataset written", zap.String("path", samplePath))
		}
	}
	return dataset, nil
}

// recordRun appends to training_log. A missing database never fails the run.
func recordRun(ctx context.Context, dbPath, modelPath string, result *ml.TrainingResult, logger *zap.Logger) {
	if dbPath == "" {
		return
	}
	if err := db.InitDB(dbPath); err != nil {
		logger.Warn("training log unavailable", zap.String("path", dbPath), zap.Error(err))
		return
	}
	defer db.Close()

	id, err := db.SaveTrainingRun(ctx, modelPath, result)
	if err != nil {
		logger.Warn("failed to record training run", zap.Error(err))
		return
	}
	logger.Info("training run recorded", zap.Int64("id", id))
}
