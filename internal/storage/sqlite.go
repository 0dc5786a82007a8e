package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pv/callpanel-go/internal/model"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore создаёт хранилище документов на базе SQLite
func NewSQLiteStore(dbPath string) (DocumentStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_charts (
			doc_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			dataset TEXT NOT NULL,
			saved_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Put перезаписывает документ одним запросом: либо запись целиком,
// либо прежний документ остаётся нетронутым
func (s *sqliteStore) Put(ctx context.Context, docID string, rec model.PersistedRecord) error {
	datasetJSON, err := json.Marshal(rec.Dataset)
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_charts (doc_id, email, dataset, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET email = excluded.email,
			dataset = excluded.dataset, saved_at = excluded.saved_at`,
		docID, rec.Email, string(datasetJSON), rec.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	return nil
}

func (s *sqliteStore) Get(ctx context.Context, docID string) (model.PersistedRecord, bool, error) {
	var (
		email       string
		datasetJSON string
		savedAt     time.Time
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT email, dataset, saved_at FROM user_charts WHERE doc_id = ?`,
		docID,
	).Scan(&email, &datasetJSON, &savedAt)

	if err == sql.ErrNoRows {
		return model.PersistedRecord{}, false, nil
	}
	if err != nil {
		return model.PersistedRecord{}, false, fmt.Errorf("query: %w", err)
	}

	var dataset model.ChartDataset
	if err := json.Unmarshal([]byte(datasetJSON), &dataset); err != nil {
		return model.PersistedRecord{}, false, fmt.Errorf("unmarshal dataset: %w", err)
	}

	return model.PersistedRecord{
		Email:   email,
		Dataset: dataset,
		SavedAt: savedAt,
	}, true, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
