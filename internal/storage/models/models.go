package models

import "time"

// CheckRecord is one standardized fact-check outcome kept in history.
type CheckRecord struct {
	ID              string    `json:"id"`
	RequestID       int64     `json:"request_id"`
	SourceType      string    `json:"source_type"`
	Claim           string    `json:"claim"`
	IsCorrect       *bool     `json:"is_correct"`
	ConfidenceScore float64   `json:"confidence_score"`
	Category        string    `json:"category,omitempty"`
	Explanation     string    `json:"explanation"`
	Sources         []string  `json:"sources"`
	CreatedAt       time.Time `json:"created_at"`
}

type HistoryFilter struct {
	SourceType string
	Limit      int
}
