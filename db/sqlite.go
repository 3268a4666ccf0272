package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"heartrisk/ml"
	"heartrisk/pipeline"
)

var ErrNotInitialized = errors.New("database not initialized")

// Config controls how the SQLite file is opened.
type Config struct {
	Path      string
	EnableWAL bool
}

// Store persists training runs, rejected dataset rows and, when enabled,
// served predictions.
type Store struct {
	db *sql.DB

	stmts    map[string]*sql.Stmt
	stmtLock sync.RWMutex
}

// Open opens (or creates) the database and its tables.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	dsn := cfg.Path
	if cfg.EnableWAL {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	} else {
		dsn += "?_busy_timeout=5000"
	}
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetMaxIdleConns(2)
	database.SetConnMaxLifetime(time.Hour)

	s := &Store{db: database, stmts: make(map[string]*sql.Stmt)}
	if err := s.createTables(); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS training_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            model_name VARCHAR(50),
            model_path TEXT,
            accuracy REAL,
            precision REAL,
            recall REAL,
            f1 REAL,
            trained_at DATETIME,
            data_points INTEGER,
            test_points INTEGER,
            rejected_rows INTEGER
        )`,
		`CREATE TABLE IF NOT EXISTS data_quality (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id INTEGER NOT NULL,
            line INTEGER NOT NULL,
            column_name TEXT NOT NULL,
            value TEXT,
            severity TEXT NOT NULL,
            message TEXT
        )`,
		`CREATE TABLE IF NOT EXISTS predictions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id TEXT,
            features TEXT NOT NULL,
            predicted_label INTEGER NOT NULL,
            probability REAL NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) prepared(ctx context.Context, query string) (*sql.Stmt, error) {
	s.stmtLock.RLock()
	stmt, ok := s.stmts[query]
	s.stmtLock.RUnlock()
	if ok {
		return stmt, nil
	}

	s.stmtLock.Lock()
	defer s.stmtLock.Unlock()
	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// Close releases prepared statements and the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.stmtLock.Lock()
	for query, stmt := range s.stmts {
		stmt.Close()
		delete(s.stmts, query)
	}
	s.stmtLock.Unlock()
	return s.db.Close()
}

type TrainingLog struct {
	ID           int64     `json:"id"`
	ModelName    string    `json:"model_name"`
	ModelPath    string    `json:"model_path"`
	Accuracy     float64   `json:"accuracy"`
	Precision    float64   `json:"precision"`
	Recall       float64   `json:"recall"`
	F1           float64   `json:"f1"`
	TrainedAt    time.Time `json:"trained_at"`
	DataPoints   int       `json:"data_points"`
	TestPoints   int       `json:"test_points"`
	RejectedRows int       `json:"rejected_rows"`
}

// TrainingLogFromBuild summarises a build using the positive class metrics.
func TrainingLogFromBuild(name, modelPath string, result *pipeline.BuildResult) TrainingLog {
	positive, _ := result.Report.Class(ml.PositiveClass)
	return TrainingLog{
		ModelName:    name,
		ModelPath:    modelPath,
		Accuracy:     result.Report.Accuracy,
		Precision:    positive.Precision,
		Recall:       positive.Recall,
		F1:           positive.F1,
		TrainedAt:    result.Pipeline.CreatedAt,
		DataPoints:   result.TrainSize,
		TestPoints:   result.TestSize,
		RejectedRows: len(result.Issues),
	}
}

// SaveTrainingRun records a training run together with the rows it rejected,
// in one transaction. It returns the run id.
func (s *Store) SaveTrainingRun(ctx context.Context, entry TrainingLog, issues []pipeline.QualityIssue) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
        INSERT INTO training_log (
            model_name, model_path, accuracy, precision, recall, f1,
            trained_at, data_points, test_points, rejected_rows
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.ModelPath, entry.Accuracy, entry.Precision, entry.Recall, entry.F1,
		entry.TrainedAt.UTC(), entry.DataPoints, entry.TestPoints, entry.RejectedRows)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(issues) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
            INSERT INTO data_quality (run_id, line, column_name, value, severity, message)
            VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		for _, issue := range issues {
			if _, err := stmt.ExecContext(ctx, runID, issue.Line, issue.Column, issue.Value, issue.Severity, issue.Message); err != nil {
				return 0, err
			}
		}
	}
	return runID, tx.Commit()
}

// LoadTrainingLog returns the most recent runs first. limit <= 0 returns all.
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, model_name, model_path, accuracy, precision, recall, f1,
               trained_at, data_points, test_points, rejected_rows
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ID, &log.ModelName, &log.ModelPath, &log.Accuracy, &log.Precision, &log.Recall,
			&log.F1, &log.TrainedAt, &log.DataPoints, &log.TestPoints, &log.RejectedRows); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// LoadQualityIssues returns the rows rejected by one training run.
func (s *Store) LoadQualityIssues(ctx context.Context, runID int64) ([]pipeline.QualityIssue, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT line, column_name, value, severity, message
        FROM data_quality
        WHERE run_id = ?
        ORDER BY line`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []pipeline.QualityIssue
	for rows.Next() {
		var issue pipeline.QualityIssue
		if err := rows.Scan(&issue.Line, &issue.Column, &issue.Value, &issue.Severity, &issue.Message); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

type PredictionRecord struct {
	RequestID string    `json:"request_id"`
	Record    ml.Record `json:"record"`
	Result    ml.Result `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// SavePrediction appends one served prediction to the audit table.
func (s *Store) SavePrediction(ctx context.Context, rec PredictionRecord) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	features, err := json.Marshal(rec.Record)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	stmt, err := s.prepared(ctx, `
        INSERT INTO predictions (request_id, features, predicted_label, probability, created_at)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, rec.RequestID, string(features), rec.Result.Prediction, rec.Result.Probability, rec.CreatedAt.UTC())
	return err
}

// CountPredictions reports how many predictions have been audited.
func (s *Store) CountPredictions(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&count)
	return count, err
}
