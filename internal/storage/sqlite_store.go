package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"

	_ "modernc.org/sqlite"

	"sessionprobe/internal/logx"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrationsSQL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Save(ctx context.Context, item HistoryItem) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return err
	}
	var detected any
	if item.Summary.DetectedOffset != nil {
		detected = int64(*item.Summary.DetectedOffset)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs(id, started_at, endpoint, status, detected, probes, doc)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET started_at=excluded.started_at, endpoint=excluded.endpoint,
		   status=excluded.status, detected=excluded.detected, probes=excluded.probes, doc=excluded.doc`,
		item.ID, item.Timestamp.UnixNano(), item.Endpoint, item.Summary.Status, detected, item.Summary.Probes, string(doc),
	)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?)`,
		MaxItems,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) List(ctx context.Context) ([]HistoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, doc FROM runs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []HistoryItem
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var item HistoryItem
		if err := json.Unmarshal([]byte(doc), &item); err != nil {
			s.log.Warn("skipping unreadable run", logx.String("id", id), logx.Err(err))
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, id string) (HistoryItem, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM runs WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return HistoryItem{}, ErrNotFound
	}
	if err != nil {
		return HistoryItem{}, err
	}
	var item HistoryItem
	if err := json.Unmarshal([]byte(doc), &item); err != nil {
		return HistoryItem{}, err
	}
	return item, nil
}
