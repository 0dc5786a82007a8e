package gateway

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pv/callpanel-go/internal/model"
	"github.com/pv/callpanel-go/internal/storage"
)

// Session результат инициализации шлюза
type Session struct {
	ID      string `json:"id"`
	Offline bool   `json:"offline"`
}

// Status текущее состояние подключения для индикатора в UI
type Status struct {
	SessionID string    `json:"sessionId"`
	Offline   bool      `json:"offline"`
	Connected bool      `json:"connected"`
	LastError string    `json:"lastError,omitempty"`
	LastOp    time.Time `json:"lastOp,omitempty"`
}

// FetchStatus исход запроса документа
type FetchStatus int

const (
	// FetchFound документ найден
	FetchFound FetchStatus = iota
	// FetchNotFound документа нет
	FetchNotFound
	// FetchFailed запрос не удался; вызывающий решает сам,
	// трактовать ли это как отсутствие документа
	FetchFailed
)

// FetchResult результат Fetch с различимыми исходами
type FetchResult struct {
	Status  FetchStatus
	Dataset model.ChartDataset
}

// Gateway шлюз к хранилищу документов. Все ошибки бэкенда гасятся на этой
// границе: наружу уходят только булевы результаты и FetchResult.
// Экземпляр создаётся явно и передаётся зависимым компонентам.
type Gateway struct {
	store  storage.DocumentStore // nil означает offline режим
	logger *slog.Logger

	mu          sync.RWMutex
	initialized bool
	session     Session
	connected   bool
	lastError   string
	lastOp      time.Time
	onStatus    func(Status)

	subMu    sync.Mutex
	subs     map[string]map[int]func(model.ChartDataset)
	subSeq   int
	watching map[string]func() // отмена remote-watch по docID
}

// New создаёт шлюз поверх хранилища. store == nil даёт offline режим:
// все записи сообщают неудачу, все чтения — отсутствие документа.
func New(store storage.DocumentStore, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:    store,
		logger:   logger.With("component", "gateway"),
		subs:     make(map[string]map[int]func(model.ChartDataset)),
		watching: make(map[string]func()),
	}
}

// Initialize инициализирует шлюз и выдаёт идентификатор сессии.
// Повторные вызовы возвращают существующую сессию.
func (g *Gateway) Initialize(ctx context.Context) Session {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return g.session
	}

	if g.store == nil {
		g.session = Session{
			ID:      "dummy-" + uuid.NewString()[:8],
			Offline: true,
		}
		g.initialized = true
		g.logger.Warn("persistence disabled, running in offline mode",
			"sessionId", g.session.ID)
		return g.session
	}

	g.session = Session{ID: uuid.NewString()}
	g.initialized = true
	g.connected = true
	g.logger.Info("gateway initialized", "sessionId", g.session.ID)
	return g.session
}

// EncodeKey нормализует email и кодирует его в безопасный идентификатор
// документа. Один и тот же логический адрес всегда даёт один и тот же
// физический ключ.
func EncodeKey(email string) string {
	return url.QueryEscape(NormalizeKey(email))
}

// NormalizeKey приводит email к каноническому виду
func NormalizeKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Save перезаписывает документ пользователя целиком.
// Возвращает false при offline режиме и любой ошибке бэкенда; ошибка
// логируется здесь и к вызывающему не поднимается.
func (g *Gateway) Save(ctx context.Context, email string, dataset model.ChartDataset) bool {
	g.mu.RLock()
	offline := !g.initialized || g.session.Offline
	g.mu.RUnlock()

	if offline {
		g.logger.Warn("save ignored in offline mode", "email", NormalizeKey(email))
		return false
	}

	rec := model.PersistedRecord{
		Email:   NormalizeKey(email),
		Dataset: dataset.Clone(),
		SavedAt: time.Now(),
	}

	docID := EncodeKey(email)
	if err := g.store.Put(ctx, docID, rec); err != nil {
		g.setStatus(false, err)
		g.logger.Error("save failed", "docId", docID, "error", err)
		return false
	}

	g.setStatus(true, nil)
	g.notify(docID, rec.Dataset)
	return true
}

// Fetch возвращает сохранённый набор по email.
// Offline режим и отсутствие документа дают NotFound, ошибка бэкенда —
// Failed; различие оставлено вызывающему.
func (g *Gateway) Fetch(ctx context.Context, email string) FetchResult {
	g.mu.RLock()
	offline := !g.initialized || g.session.Offline
	g.mu.RUnlock()

	if offline {
		return FetchResult{Status: FetchNotFound}
	}

	docID := EncodeKey(email)
	rec, found, err := g.store.Get(ctx, docID)
	if err != nil {
		g.setStatus(false, err)
		g.logger.Warn("fetch failed", "docId", docID, "error", err)
		return FetchResult{Status: FetchFailed}
	}

	g.setStatus(true, nil)
	if !found {
		return FetchResult{Status: FetchNotFound}
	}
	return FetchResult{Status: FetchFound, Dataset: rec.Dataset}
}

// Subscribe регистрирует callback на изменения документа пользователя.
// После вызова возвращённой функции callback гарантированно не вызывается.
// В offline режиме возвращает no-op.
func (g *Gateway) Subscribe(email string, onChange func(model.ChartDataset)) (unsubscribe func()) {
	g.mu.RLock()
	offline := !g.initialized || g.session.Offline
	g.mu.RUnlock()

	if offline || onChange == nil {
		return func() {}
	}

	docID := EncodeKey(email)

	g.subMu.Lock()
	if g.subs[docID] == nil {
		g.subs[docID] = make(map[int]func(model.ChartDataset))
	}
	g.subSeq++
	id := g.subSeq
	g.subs[docID][id] = onChange

	// Для удалённого хранилища дополнительно оформляем push-подписку
	if w, ok := g.store.(storage.Watcher); ok {
		if _, exists := g.watching[docID]; !exists {
			g.watching[docID] = w.Watch(docID, func(rec model.PersistedRecord) {
				g.notify(docID, rec.Dataset)
			})
		}
	}
	g.subMu.Unlock()

	return func() {
		g.subMu.Lock()
		defer g.subMu.Unlock()

		delete(g.subs[docID], id)
		if len(g.subs[docID]) == 0 {
			delete(g.subs, docID)
			if cancel, ok := g.watching[docID]; ok {
				cancel()
				delete(g.watching, docID)
			}
		}
	}
}

// notify рассылает изменение подписчикам документа.
// Вызов под subMu: отписка служит жёстким барьером, поздних callback не бывает.
func (g *Gateway) notify(docID string, dataset model.ChartDataset) {
	g.subMu.Lock()
	defer g.subMu.Unlock()

	for _, fn := range g.subs[docID] {
		fn(dataset.Clone())
	}
}

// Status возвращает текущее состояние подключения
func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return Status{
		SessionID: g.session.ID,
		Offline:   g.session.Offline,
		Connected: g.initialized && !g.session.Offline && g.connected,
		LastError: g.lastError,
		LastOp:    g.lastOp,
	}
}

// SetStatusCallback регистрирует callback на смену состояния подключения.
// Вызывается только при фактической смене connected или lastError.
func (g *Gateway) SetStatusCallback(fn func(Status)) {
	g.mu.Lock()
	g.onStatus = fn
	g.mu.Unlock()
}

func (g *Gateway) setStatus(connected bool, err error) {
	g.mu.Lock()

	lastError := ""
	if err != nil {
		lastError = err.Error()
	}
	changed := g.connected != connected || g.lastError != lastError

	g.connected = connected
	g.lastError = lastError
	g.lastOp = time.Now()

	fn := g.onStatus
	st := Status{
		SessionID: g.session.ID,
		Offline:   g.session.Offline,
		Connected: g.initialized && !g.session.Offline && g.connected,
		LastError: g.lastError,
		LastOp:    g.lastOp,
	}
	g.mu.Unlock()

	// Callback вне g.mu: внутри него могут читать Status()
	if changed && fn != nil {
		fn(st)
	}
}

// Close закрывает хранилище
func (g *Gateway) Close() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}
