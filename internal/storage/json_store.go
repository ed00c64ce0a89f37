package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"sessionprobe/internal/logx"
)

// jsonStore keeps every run in one indented JSON file, newest first.
type jsonStore struct {
	mu       sync.RWMutex
	filePath string
	items    []HistoryItem
	log      logx.Logger
}

func openJSON(cfg Config, log logx.Logger) (Store, error) {
	s := &jsonStore{filePath: cfg.Path, log: log}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *jsonStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		// keep going with an empty history rather than refusing to start
		s.log.Warn("history file unreadable, starting empty", logx.Err(err))
		s.items = nil
	}
	return nil
}

func (s *jsonStore) Save(_ context.Context, item HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := append([]HistoryItem{item}, s.items...)
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return err
	}
	s.items = items
	return nil
}

func (s *jsonStore) List(context.Context) ([]HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]HistoryItem, len(s.items))
	copy(res, s.items)
	return res, nil
}

func (s *jsonStore) Get(_ context.Context, id string) (HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return HistoryItem{}, ErrNotFound
}

func (s *jsonStore) Close() error { return nil }
