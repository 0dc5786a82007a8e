package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pv/callpanel-go/internal/gateway"
)

// SSEEvent событие для SSE клиентов
type SSEEvent struct {
	Type      string      `json:"type"`
	Chart     string      `json:"chart,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SSEClient подключённый SSE клиент
type SSEClient struct {
	chartName string // фильтр по панели; пустая строка — все события
	events    chan SSEEvent
}

// SSEHub рассылает события всем подключённым SSE клиентам
type SSEHub struct {
	mu      sync.RWMutex
	clients map[*SSEClient]bool
}

// NewSSEHub создаёт новый hub
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[*SSEClient]bool),
	}
}

// AddClient регистрирует клиента.
// chartName фильтрует события chart_update по панели; пустая строка — все.
func (h *SSEHub) AddClient(chartName string) *SSEClient {
	client := &SSEClient{
		chartName: chartName,
		events:    make(chan SSEEvent, 16),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	return client
}

// RemoveClient удаляет клиента
func (h *SSEHub) RemoveClient(client *SSEClient) {
	h.mu.Lock()
	if h.clients[client] {
		delete(h.clients, client)
		close(client.events)
	}
	h.mu.Unlock()
}

// ClientCount возвращает число подключённых клиентов
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast рассылает событие с учётом фильтра клиентов.
// Медленный клиент с переполненным буфером событие теряет.
func (h *SSEHub) Broadcast(event SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if event.Chart != "" && client.chartName != "" && client.chartName != event.Chart {
			continue
		}
		select {
		case client.events <- event:
		default:
		}
	}
}

// BroadcastChart рассылает обновление набора панели
func (h *SSEHub) BroadcastChart(chartName string, data interface{}) {
	h.Broadcast(SSEEvent{
		Type:      "chart_update",
		Chart:     chartName,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// BroadcastStatus рассылает смену статуса подключения
func (h *SSEHub) BroadcastStatus(status gateway.Status) {
	h.Broadcast(SSEEvent{
		Type:      "status",
		Data:      status,
		Timestamp: time.Now(),
	})
}

// Events обрабатывает SSE подключение
// GET /api/events?chart=duration
func (h *SSEHub) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.AddClient(r.URL.Query().Get("chart"))
	defer h.RemoveClient(client)

	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-client.events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
