package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TrainerConfig holds the fitting parameters. The defaults reproduce the
// published model: 100 trees, seed 42, 30% held out.
type TrainerConfig struct {
	NumTrees  int
	Seed      int64
	TestRatio float64
	MaxDepth  int
	Workers   int
}

func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		NumTrees:  DefaultNumTrees,
		Seed:      DefaultSeed,
		TestRatio: DefaultTestRatio,
	}
}

type Trainer struct {
	config TrainerConfig
	logger *zap.Logger
}

func NewTrainer(config TrainerConfig, logger *zap.Logger) *Trainer {
	if config.NumTrees <= 0 {
		config.NumTrees = DefaultNumTrees
	}
	if config.TestRatio <= 0 || config.TestRatio >= 1 {
		config.TestRatio = DefaultTestRatio
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{config: config, logger: logger}
}

// TrainingResult is what a finished run produced. AUC is only meaningful
// when AUCDefined is true.
type TrainingResult struct {
	Forest     *RandomForest
	Schema     FeatureSchema
	AUC        float64
	AUCDefined bool
	Accuracy   float64
	TrainRows  int
	TestRows   int
	Duration   time.Duration
}

// Train fits a forest on the training partition and scores the held-out
// partition. It does not persist anything; see SaveArtifact.
func (t *Trainer) Train(ctx context.Context, dataset Dataset) (*TrainingResult, error) {
	start := time.Now()

	features, labels, schema, err := BuildTrainingSet(dataset)
	if err != nil {
		return nil, err
	}
	if len(features) < 2 {
		return nil, &DatasetError{Reason: fmt.Sprintf("need at least 2 rows, got %d", len(features))}
	}

	trainX, trainY, testX, testY := splitDataset(features, labels, t.config.TestRatio, t.config.Seed)
	if len(trainX) == 0 {
		return nil, &DatasetError{Reason: "training partition is empty"}
	}
	t.logger.Info("dataset split",
		zap.Int("rows", len(features)),
		zap.Int("train_rows", len(trainX)),
		zap.Int("test_rows", len(testX)),
		zap.Strings("schema", schema),
	)

	forest := NewRandomForest(t.config.NumTrees, t.config.Seed)
	forest.MaxDepth = t.config.MaxDepth
	forest.Workers = t.config.Workers
	if err := forest.Fit(ctx, trainX, trainY); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	result := &TrainingResult{
		Forest:    forest,
		Schema:    schema,
		TrainRows: len(trainX),
		TestRows:  len(testX),
	}

	scores := make([]float64, len(testX))
	for i, x := range testX {
		scores[i] = forest.PredictProba(x)
	}
	result.Accuracy = Accuracy(testY, scores)

	auc, err := ROCAUC(testY, scores)
	switch {
	case err == nil:
		result.AUC = auc
		result.AUCDefined = true
		t.logger.Info("model evaluated", zap.Float64("roc_auc", auc), zap.Float64("accuracy", result.Accuracy))
	case errors.Is(err, ErrUndefinedAUC):
		t.logger.Warn("roc auc undefined on held-out partition", zap.Error(err))
	default:
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	result.Duration = time.Since(start)
	t.logger.Info("training finished",
		zap.Int("trees", len(forest.Trees)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
