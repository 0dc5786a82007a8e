package storage

import (
	"context"
	"sync"

	"github.com/pv/callpanel-go/internal/model"
)

type memoryStore struct {
	mu   sync.RWMutex
	docs map[string]model.PersistedRecord
}

// NewMemoryStore создаёт хранилище в памяти
func NewMemoryStore() DocumentStore {
	return &memoryStore{
		docs: make(map[string]model.PersistedRecord),
	}
}

func (m *memoryStore) Put(_ context.Context, docID string, rec model.PersistedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Копируем набор, чтобы вызывающий не мог изменить сохранённый документ
	rec.Dataset = rec.Dataset.Clone()
	m.docs[docID] = rec
	return nil
}

func (m *memoryStore) Get(_ context.Context, docID string) (model.PersistedRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.docs[docID]
	if !ok {
		return model.PersistedRecord{}, false, nil
	}
	rec.Dataset = rec.Dataset.Clone()
	return rec, true, nil
}

func (m *memoryStore) Close() error {
	return nil
}
