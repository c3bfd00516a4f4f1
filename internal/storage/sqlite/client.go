package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/internal/storage/models"
	"github.com/factcheck-pro/backend/pkg/logger"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type Client struct {
	db  *sql.DB
	now func() time.Time
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, now: time.Now}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS check_history (
		id TEXT PRIMARY KEY,
		request_id INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		claim TEXT,
		is_correct INTEGER,
		confidence_score REAL,
		category TEXT,
		explanation TEXT,
		sources TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_created ON check_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_history_type ON check_history(source_type);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database schema initialized")
	return nil
}

// Record stores a standardized result under a fresh id.
func (c *Client) Record(ctx context.Context, requestID int64, result *factcheck.Result) error {
	return c.InsertCheck(ctx, &models.CheckRecord{
		ID:              uuid.New().String(),
		RequestID:       requestID,
		SourceType:      string(result.SourceType),
		Claim:           result.Claim,
		IsCorrect:       result.IsCorrect,
		ConfidenceScore: result.ConfidenceScore,
		Category:        result.Category,
		Explanation:     result.Explanation,
		Sources:         result.Sources,
		CreatedAt:       c.now(),
	})
}

func (c *Client) InsertCheck(ctx context.Context, record *models.CheckRecord) error {
	query := `
		INSERT INTO check_history (id, request_id, source_type, claim, is_correct, confidence_score,
			category, explanation, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var isCorrect sql.NullInt64
	if record.IsCorrect != nil {
		isCorrect.Valid = true
		if *record.IsCorrect {
			isCorrect.Int64 = 1
		}
	}

	sources, err := json.Marshal(record.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		query,
		record.ID,
		record.RequestID,
		record.SourceType,
		record.Claim,
		isCorrect,
		record.ConfidenceScore,
		record.Category,
		record.Explanation,
		string(sources),
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert check record: %w", err)
	}

	logger.Debug("Check recorded",
		zap.String("id", record.ID),
		zap.Int64("request_id", record.RequestID),
		zap.String("source_type", record.SourceType),
	)

	return nil
}

// ListChecks returns the newest records first.
func (c *Client) ListChecks(ctx context.Context, filter models.HistoryFilter) ([]models.CheckRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	query := `
		SELECT id, request_id, source_type, claim, is_correct, confidence_score, category,
			explanation, sources, created_at
		FROM check_history
		WHERE (? = '' OR source_type = ?)
		ORDER BY created_at DESC, request_id DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, filter.SourceType, filter.SourceType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get check history: %w", err)
	}
	defer rows.Close()

	records := []models.CheckRecord{}
	for rows.Next() {
		var (
			r         models.CheckRecord
			isCorrect sql.NullInt64
			sources   sql.NullString
			createdAt int64
		)

		err := rows.Scan(&r.ID, &r.RequestID, &r.SourceType, &r.Claim, &isCorrect,
			&r.ConfidenceScore, &r.Category, &r.Explanation, &sources, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if isCorrect.Valid {
			v := isCorrect.Int64 == 1
			r.IsCorrect = &v
		}
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &r.Sources); err != nil {
				return nil, fmt.Errorf("failed to decode sources: %w", err)
			}
		}
		if r.Sources == nil {
			r.Sources = []string{}
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, r)
	}

	return records, rows.Err()
}
