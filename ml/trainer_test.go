package ml

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestTrainerTrain(t *testing.T) {
	trainer := NewTrainer(DefaultTrainerConfig(), zap.NewNop())
	result, err := trainer.Train(context.Background(), sampleDataset())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TrainRows != 5 || result.TestRows != 3 {
		t.Fatalf("expected 5/3 split, got %d/%d", result.TrainRows, result.TestRows)
	}
	if len(result.Forest.Trees) != DefaultNumTrees {
		t.Fatalf("expected %d trees, got %d", DefaultNumTrees, len(result.Forest.Trees))
	}
	if len(result.Schema) != len(FeatureNames()) {
		t.Fatalf("unexpected schema: %v", result.Schema)
	}
	if result.AUCDefined && (result.AUC < 0 || result.AUC > 1) {
		t.Fatalf("auc out of range: %f", result.AUC)
	}
}

func TestTrainerIsReproducible(t *testing.T) {
	dataset := repeated(sampleDataset(), 3)
	first, err := NewTrainer(DefaultTrainerConfig(), nil).Train(context.Background(), dataset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewTrainer(DefaultTrainerConfig(), nil).Train(context.Background(), dataset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.AUC != second.AUC || first.Accuracy != second.Accuracy {
		t.Fatalf("metrics differ between runs: %f/%f vs %f/%f", first.AUC, first.Accuracy, second.AUC, second.Accuracy)
	}
	for _, example := range sampleDataset() {
		x := first.Schema.Project(ExtractURLFeatures(example.URL))
		if first.Forest.PredictProba(x) != second.Forest.PredictProba(x) {
			t.Fatalf("predictions differ between runs for %s", example.URL)
		}
	}
}

func TestTrainerDatasetErrors(t *testing.T) {
	trainer := NewTrainer(DefaultTrainerConfig(), nil)
	tests := []struct {
		name    string
		dataset Dataset
	}{
		{"empty", nil},
		{"single row", Dataset{{URL: "https://github.com", Label: 0}}},
		{"bad label", Dataset{{URL: "https://github.com", Label: 0}, {URL: "http://x", Label: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trainer.Train(context.Background(), tt.dataset)
			var datasetErr *DatasetError
			if !errors.As(err, &datasetErr) {
				t.Fatalf("expected DatasetError, got %v", err)
			}
		})
	}
}
