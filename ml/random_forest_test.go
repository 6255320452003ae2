package ml

import (
	"context"
	"encoding/json"
	"testing"
)

func sampleDataset() Dataset {
	return Dataset{
		{URL: "https://www.google.com", Label: 0},
		{URL: "https://secure-login.paypal.com", Label: 1},
		{URL: "https://accounts.google.com", Label: 0},
		{URL: "http://192.168.0.1/login", Label: 1},
		{URL: "http://update-bank-info.com", Label: 1},
		{URL: "https://github.com", Label: 0},
		{URL: "https://verify-facebook.com", Label: 1},
		{URL: "https://microsoft.com", Label: 0},
	}
}

// repeated returns the dataset copied n times so every row is almost
// certainly in each tree's bootstrap sample.
func repeated(dataset Dataset, n int) Dataset {
	out := make(Dataset, 0, len(dataset)*n)
	for i := 0; i < n; i++ {
		out = append(out, dataset...)
	}
	return out
}

func fitSampleForest(t *testing.T) (*RandomForest, FeatureSchema) {
	t.Helper()
	features, labels, schema, err := BuildTrainingSet(repeated(sampleDataset(), 10))
	if err != nil {
		t.Fatalf("build training set: %v", err)
	}
	forest := NewRandomForest(DefaultNumTrees, DefaultSeed)
	if err := forest.Fit(context.Background(), features, labels); err != nil {
		t.Fatalf("fit: %v", err)
	}
	return forest, schema
}

func TestRandomForestFit(t *testing.T) {
	forest, schema := fitSampleForest(t)
	if len(forest.Trees) != DefaultNumTrees {
		t.Fatalf("expected %d trees, got %d", DefaultNumTrees, len(forest.Trees))
	}
	if forest.NumFeatures != len(schema) {
		t.Fatalf("expected %d features, got %d", len(schema), forest.NumFeatures)
	}
	if err := forest.Validate(); err != nil {
		t.Fatalf("fitted forest invalid: %v", err)
	}

	for _, example := range sampleDataset() {
		p := forest.PredictProba(schema.Project(ExtractURLFeatures(example.URL)))
		if p < 0 || p > 1 {
			t.Fatalf("probability out of range for %s: %f", example.URL, p)
		}
		if decide(p) != example.Label {
			t.Errorf("%s: probability %f, want label %d", example.URL, p, example.Label)
		}
	}
}

func TestRandomForestWorkerCountDoesNotChangeModel(t *testing.T) {
	features, labels, _, err := BuildTrainingSet(sampleDataset())
	if err != nil {
		t.Fatalf("build training set: %v", err)
	}

	var payloads []string
	for _, workers := range []int{1, 4} {
		forest := NewRandomForest(20, DefaultSeed)
		forest.Workers = workers
		if err := forest.Fit(context.Background(), features, labels); err != nil {
			t.Fatalf("fit: %v", err)
		}
		payload, err := json.Marshal(forest)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		payloads = append(payloads, string(payload))
	}
	if payloads[0] != payloads[1] {
		t.Fatal("forest differs between worker counts")
	}
}

func TestRandomForestFitCancelled(t *testing.T) {
	features, labels, _, err := BuildTrainingSet(sampleDataset())
	if err != nil {
		t.Fatalf("build training set: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRandomForest(10, 1).Fit(ctx, features, labels); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestRandomForestRejectsRaggedRows(t *testing.T) {
	err := NewRandomForest(1, 1).Fit(context.Background(), [][]float64{{1, 2}, {1}}, []int{0, 1})
	if err == nil {
		t.Fatal("expected error for ragged rows")
	}
}

func TestUntrainedForest(t *testing.T) {
	forest := NewRandomForest(0, 0)
	if forest.NumTrees != DefaultNumTrees {
		t.Fatalf("expected default tree count, got %d", forest.NumTrees)
	}
	if p := forest.PredictProba([]float64{1}); p != 0 {
		t.Fatalf("untrained forest should score 0, got %f", p)
	}
	if err := forest.Validate(); err != ErrModelNotTrained {
		t.Fatalf("expected ErrModelNotTrained, got %v", err)
	}
}
