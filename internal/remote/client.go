package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pv/callpanel-go/internal/model"
)

// ErrNotConnected соединение с document gateway отсутствует
var ErrNotConnected = errors.New("not connected to document gateway")

const requestTimeout = 10 * time.Second

// Client WebSocket клиент document gateway. Реализует storage.DocumentStore
// и storage.Watcher: get/set документов по запросу и push-уведомления для
// документов под наблюдением.
type Client struct {
	baseURL string // http://host:port
	wsURL   string // ws://host:port/docs/

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	// Запись в websocket допускает не более одного писателя
	writeMu sync.Mutex

	nextID  int64
	pending map[int64]chan Frame

	// Подписки для переотправки после переподключения
	watchMu  sync.Mutex
	watchers map[string]map[int]func(model.PersistedRecord)
	watchSeq int

	// Reconnect параметры
	reconnectInterval        time.Duration
	maxReconnectInterval     time.Duration
	currentReconnectInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewClient создаёт нового клиента document gateway.
// baseURL должен быть в формате http://host:port
func NewClient(baseURL string, logger *slog.Logger) *Client {
	// Преобразуем http:// в ws://
	wsURL := strings.Replace(baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	if !strings.HasSuffix(wsURL, "/") {
		wsURL += "/"
	}
	wsURL += "docs/"

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:                  baseURL,
		wsURL:                    wsURL,
		pending:                  make(map[int64]chan Frame),
		watchers:                 make(map[string]map[int]func(model.PersistedRecord)),
		reconnectInterval:        time.Second,
		maxReconnectInterval:     30 * time.Second,
		currentReconnectInterval: time.Second,
		logger:                   logger.With("component", "remote-store"),
	}
}

// Connect подключается к document gateway
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if err := c.connect(); err != nil {
		// Дальше пытаемся в фоне; до подключения запросы вернут ошибку
		go c.reconnectLoop()
		return err
	}
	return nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	u, err := url.Parse(c.wsURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}

	c.logger.Info("connecting to document gateway", "url", c.wsURL)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(c.ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.currentReconnectInterval = c.reconnectInterval

	c.logger.Info("connected to document gateway")

	c.wg.Add(1)
	go c.readLoop(conn)

	// Переоформляем подписки на документы
	go c.rewatch()

	return nil
}

// IsConnected возвращает статус подключения
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Get запрашивает документ у gateway
func (c *Client) Get(ctx context.Context, docID string) (model.PersistedRecord, bool, error) {
	resp, err := c.request(ctx, Frame{Type: frameGet, DocID: docID})
	if err != nil {
		return model.PersistedRecord{}, false, err
	}
	if !resp.OK {
		return model.PersistedRecord{}, false, fmt.Errorf("gateway error: %s", resp.Error)
	}
	if !resp.Found || resp.Record == nil {
		return model.PersistedRecord{}, false, nil
	}
	return *resp.Record, true, nil
}

// Put перезаписывает документ на gateway
func (c *Client) Put(ctx context.Context, docID string, rec model.PersistedRecord) error {
	resp, err := c.request(ctx, Frame{Type: frameSet, DocID: docID, Record: &rec})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("gateway error: %s", resp.Error)
	}
	return nil
}

// Watch регистрирует callback на изменения документа
func (c *Client) Watch(docID string, fn func(model.PersistedRecord)) (cancel func()) {
	c.watchMu.Lock()
	first := len(c.watchers[docID]) == 0
	if c.watchers[docID] == nil {
		c.watchers[docID] = make(map[int]func(model.PersistedRecord))
	}
	c.watchSeq++
	id := c.watchSeq
	c.watchers[docID][id] = fn
	c.watchMu.Unlock()

	if first {
		if err := c.send(Frame{Type: frameWatch, DocID: docID}); err != nil {
			c.logger.Warn("watch command failed", "docId", docID, "error", err)
		}
	}

	return func() {
		c.watchMu.Lock()
		delete(c.watchers[docID], id)
		last := len(c.watchers[docID]) == 0
		if last {
			delete(c.watchers, docID)
		}
		c.watchMu.Unlock()

		if last {
			if err := c.send(Frame{Type: frameUnwatch, DocID: docID}); err != nil {
				c.logger.Debug("unwatch command failed", "docId", docID, "error", err)
			}
		}
	}
}

// Close закрывает соединение
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// request отправляет кадр и ждёт коррелированный ответ
func (c *Client) request(ctx context.Context, f Frame) (Frame, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return Frame{}, ErrNotConnected
	}
	c.nextID++
	f.ID = c.nextID
	ch := make(chan Frame, 1)
	c.pending[f.ID] = ch
	conn := c.conn
	c.mu.Unlock()

	if err := c.writeFrame(conn, f); err != nil {
		c.dropPending(f.ID)
		return Frame{}, fmt.Errorf("write frame: %w", err)
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		c.dropPending(f.ID)
		return Frame{}, fmt.Errorf("request timeout (%s)", f.Type)
	case <-ctx.Done():
		c.dropPending(f.ID)
		return Frame{}, ctx.Err()
	}
}

func (c *Client) dropPending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) send(f Frame) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}
	return c.writeFrame(conn, f)
}

func (c *Client) writeFrame(conn *websocket.Conn, f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(f)
}

// readLoop читает кадры до разрыва соединения, затем запускает reconnect
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			c.handleDisconnect(err)
			return
		}

		switch f.Type {
		case frameResult:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			if ok {
				delete(c.pending, f.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- f
			}

		case frameUpdate:
			if f.Record != nil {
				c.dispatchUpdate(f.DocID, *f.Record)
			}

		default:
			c.logger.Debug("unknown frame type", "type", f.Type)
		}
	}
}

func (c *Client) dispatchUpdate(docID string, rec model.PersistedRecord) {
	c.watchMu.Lock()
	fns := make([]func(model.PersistedRecord), 0, len(c.watchers[docID]))
	for _, fn := range c.watchers[docID] {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()

	for _, fn := range fns {
		fn(rec)
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	closed := c.closed

	// Отбрасываем незавершённые запросы: ответ уже не придёт
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if closed || !wasConnected {
		return
	}

	c.logger.Warn("document gateway connection lost", "error", err)
	go c.reconnectLoop()
}

// reconnectLoop переподключается с экспоненциальной задержкой
func (c *Client) reconnectLoop() {
	for {
		c.mu.RLock()
		interval := c.currentReconnectInterval
		ctx := c.ctx
		c.mu.RUnlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if err := c.connect(); err == nil {
			return
		}

		c.mu.Lock()
		c.currentReconnectInterval *= 2
		if c.currentReconnectInterval > c.maxReconnectInterval {
			c.currentReconnectInterval = c.maxReconnectInterval
		}
		c.mu.Unlock()
	}
}

// rewatch переотправляет команды watch после переподключения
func (c *Client) rewatch() {
	c.watchMu.Lock()
	docIDs := make([]string, 0, len(c.watchers))
	for docID := range c.watchers {
		docIDs = append(docIDs, docID)
	}
	c.watchMu.Unlock()

	for _, docID := range docIDs {
		if err := c.send(Frame{Type: frameWatch, DocID: docID}); err != nil {
			c.logger.Warn("rewatch failed", "docId", docID, "error", err)
		}
	}
}
