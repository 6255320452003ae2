package db

import (
	"context"
	"testing"
	"time"

	"phishguard/ml"
)

func TestPredictionRecorderFlushesOnClose(t *testing.T) {
	resetTables(t)

	recorder := NewPredictionRecorder(RecorderConfig{QueueSize: 10, BatchSize: 100, FlushInterval: time.Hour}, nil)
	for _, url := range []string{"https://a.com", "https://b.com", "https://c.com"} {
		if !recorder.Record(&ml.PredictionResult{URL: url, Explanation: []string{}}) {
			t.Fatalf("Record(%s) rejected", url)
		}
	}
	recorder.Close()

	if recorder.Written() != 3 {
		t.Errorf("expected 3 written, got %d", recorder.Written())
	}
	recent, err := RecentPredictions(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentPredictions() error = %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(recent))
	}
}

func TestPredictionRecorderBatchSize(t *testing.T) {
	resetTables(t)

	recorder := NewPredictionRecorder(RecorderConfig{QueueSize: 10, BatchSize: 2, FlushInterval: time.Hour}, nil)
	defer recorder.Close()

	recorder.Record(&ml.PredictionResult{URL: "https://a.com"})
	recorder.Record(&ml.PredictionResult{URL: "https://b.com"})

	deadline := time.Now().Add(2 * time.Second)
	for recorder.Written() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if recorder.Written() != 2 {
		t.Fatalf("batch not flushed when full, written = %d", recorder.Written())
	}
}

func TestPredictionRecorderRejectsAfterClose(t *testing.T) {
	recorder := NewPredictionRecorder(DefaultRecorderConfig(), nil)
	recorder.Close()
	recorder.Close()

	if recorder.Record(&ml.PredictionResult{URL: "https://a.com"}) {
		t.Error("Record should reject after Close")
	}
	if recorder.Record(nil) {
		t.Error("Record should reject nil")
	}
}
