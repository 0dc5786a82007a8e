package storage

import (
	"context"

	"github.com/pv/callpanel-go/internal/model"
)

// DocumentStore интерфейс хранилища документов с пользовательскими наборами
type DocumentStore interface {
	// Put перезаписывает документ целиком
	Put(ctx context.Context, docID string, rec model.PersistedRecord) error

	// Get возвращает документ; второй результат false если документа нет
	Get(ctx context.Context, docID string) (model.PersistedRecord, bool, error)

	// Close закрывает хранилище
	Close() error
}

// Watcher опциональный канал push-уведомлений об изменении документа.
// Реализуется удалённым хранилищем; локальные бэкенды его не предоставляют.
type Watcher interface {
	// Watch регистрирует callback на изменения документа.
	// Возвращённая функция снимает подписку.
	Watch(docID string, fn func(rec model.PersistedRecord)) (cancel func())
}

// CollectionName имя коллекции пользовательских наборов
const CollectionName = "user_charts"
