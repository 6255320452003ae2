package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"phishguard/ml"
)

var database *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// InitDB opens (or creates) the SQLite database at path in WAL mode and
// creates the schema.
func InitDB(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open database failed: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_path TEXT NOT NULL,
        roc_auc REAL,
        accuracy REAL,
        train_rows INTEGER NOT NULL,
        test_rows INTEGER NOT NULL,
        num_trees INTEGER NOT NULL,
        duration_ms INTEGER DEFAULT 0,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        url TEXT NOT NULL,
        probability REAL NOT NULL,
        label INTEGER NOT NULL,
        explanation TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    `
	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return fmt.Errorf("create tables failed: %w", err)
	}

	if database != nil {
		database.Close()
	}
	database = conn
	return nil
}

func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// TrainingLog is one row of training_log. ROCAUC is nil when the held-out
// partition had a single class.
type TrainingLog struct {
	ID        int64     `json:"id"`
	ModelPath string    `json:"model_path"`
	ROCAUC    *float64  `json:"roc_auc"`
	Accuracy  float64   `json:"accuracy"`
	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
	NumTrees  int       `json:"num_trees"`
	Duration  int64     `json:"duration_ms"`
	TrainedAt time.Time `json:"trained_at"`
}

// SaveTrainingRun appends a finished run to training_log.
func SaveTrainingRun(ctx context.Context, modelPath string, result *ml.TrainingResult) (int64, error) {
	if database == nil {
		return 0, ErrNotInitialized
	}
	if result == nil || result.Forest == nil {
		return 0, errors.New("training result required")
	}

	var auc sql.NullFloat64
	if result.AUCDefined {
		auc = sql.NullFloat64{Float64: result.AUC, Valid: true}
	}
	res, err := database.ExecContext(ctx, `
        INSERT INTO training_log (
            model_path, roc_auc, accuracy, train_rows, test_rows, num_trees, duration_ms, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		modelPath,
		auc,
		result.Accuracy,
		result.TrainRows,
		result.TestRows,
		len(result.Forest.Trees),
		result.Duration.Milliseconds(),
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert training run: %w", err)
	}
	return res.LastInsertId()
}

// LoadTrainingLog returns up to limit runs, newest first. limit <= 0
// returns all of them.
func LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	query := `
        SELECT id, model_path, roc_auc, accuracy, train_rows, test_rows, num_trees, duration_ms, trained_at
        FROM training_log
        ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var auc sql.NullFloat64
		if err := rows.Scan(&log.ID, &log.ModelPath, &auc, &log.Accuracy, &log.TrainRows, &log.TestRows,
			&log.NumTrees, &log.Duration, &log.TrainedAt); err != nil {
			return nil, err
		}
		if auc.Valid {
			v := auc.Float64
			log.ROCAUC = &v
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// LatestTrainingRun returns the most recent run, or nil when none exist.
func LatestTrainingRun(ctx context.Context) (*TrainingLog, error) {
	logs, err := LoadTrainingLog(ctx, 1)
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return &logs[0], nil
}

// PredictionLog is one row of predictions.
type PredictionLog struct {
	ml.PredictionResult
	CreatedAt time.Time `json:"created_at"`
}

// SavePredictions inserts the batch in a single transaction.
func SavePredictions(ctx context.Context, predictions []PredictionLog) error {
	if database == nil {
		return ErrNotInitialized
	}
	if len(predictions) == 0 {
		return nil
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO predictions (url, probability, label, explanation, created_at)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range predictions {
		explanation := p.Explanation
		if explanation == nil {
			explanation = []string{}
		}
		data, err := json.Marshal(explanation)
		if err != nil {
			return fmt.Errorf("encode explanation: %w", err)
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, p.URL, p.PhishingProbability, p.Label, string(data), p.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert prediction: %w", err)
		}
	}
	return tx.Commit()
}

// RecentPredictions returns up to limit predictions, newest first.
func RecentPredictions(ctx context.Context, limit int) ([]PredictionLog, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.QueryContext(ctx, `
        SELECT url, probability, label, explanation, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := make([]PredictionLog, 0)
	for rows.Next() {
		var p PredictionLog
		var explanation string
		if err := rows.Scan(&p.URL, &p.PhishingProbability, &p.Label, &explanation, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Explanation = []string{}
		if explanation != "" {
			if err := json.Unmarshal([]byte(explanation), &p.Explanation); err != nil {
				return nil, fmt.Errorf("decode explanation: %w", err)
			}
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// PredictionStats counts logged predictions.
func PredictionStats(ctx context.Context) (total, phishing int64, err error) {
	if database == nil {
		return 0, 0, ErrNotInitialized
	}
	err = database.QueryRowContext(ctx, `
        SELECT COUNT(*), COALESCE(SUM(label), 0) FROM predictions`).Scan(&total, &phishing)
	return total, phishing, err
}
