package api

import (
	"io/fs"
	"net/http"
)

// NewServer собирает маршрутизатор API и встроенного UI
func NewServer(handlers *Handlers, hub *SSEHub, uiContent fs.FS) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", handlers.GetStatus)
	mux.HandleFunc("GET /api/charts", handlers.GetCharts)
	mux.HandleFunc("GET /api/charts/{name}/png", handlers.GetChartPNG)

	mux.HandleFunc("POST /api/edit/open", handlers.EditOpen)
	mux.HandleFunc("POST /api/edit/key", handlers.EditKey)
	mux.HandleFunc("POST /api/edit/confirm", handlers.EditConfirm)
	mux.HandleFunc("POST /api/edit/back", handlers.EditBack)
	mux.HandleFunc("POST /api/edit/field", handlers.EditField)
	mux.HandleFunc("POST /api/edit/save", handlers.EditSave)
	mux.HandleFunc("POST /api/edit/cancel", handlers.EditCancel)

	mux.HandleFunc("GET /api/events", hub.Events)

	mux.Handle("/", http.FileServerFS(uiContent))

	return mux
}
