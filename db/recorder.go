package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"phishguard/ml"
)

// RecorderConfig sizes the prediction log queue.
type RecorderConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		QueueSize:     1000,
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// PredictionRecorder writes predictions to the predictions table from a
// background goroutine. Record never blocks; a full queue drops the entry.
type PredictionRecorder struct {
	config RecorderConfig
	logger *zap.Logger

	queue chan PredictionLog
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	written atomic.Int64
}

func NewPredictionRecorder(config RecorderConfig, logger *zap.Logger) *PredictionRecorder {
	defaults := DefaultRecorderConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaults.FlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &PredictionRecorder{
		config: config,
		logger: logger,
		queue:  make(chan PredictionLog, config.QueueSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record queues a prediction. It reports whether the entry was accepted.
func (r *PredictionRecorder) Record(result *ml.PredictionResult) bool {
	if result == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	entry := PredictionLog{PredictionResult: *result, CreatedAt: time.Now()}
	select {
	case r.queue <- entry:
		return true
	default:
		r.dropped.Add(1)
		r.logger.Warn("prediction log queue full, dropping entry", zap.String("url", result.URL))
		return false
	}
}

func (r *PredictionRecorder) Dropped() int64 { return r.dropped.Load() }

func (r *PredictionRecorder) Written() int64 { return r.written.Load() }

// Close stops accepting entries and flushes what is queued.
func (r *PredictionRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *PredictionRecorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]PredictionLog, 0, r.config.BatchSize)
	for {
		select {
		case entry, ok := <-r.queue:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= r.config.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *PredictionRecorder) flush(batch []PredictionLog) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := SavePredictions(ctx, batch); err != nil {
		r.logger.Error("failed to write prediction batch", zap.Int("size", len(batch)), zap.Error(err))
		return
	}
	r.written.Add(int64(len(batch)))
	r.logger.Debug("prediction batch written", zap.Int("size", len(batch)))
}
