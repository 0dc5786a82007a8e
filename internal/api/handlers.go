package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pv/callpanel-go/internal/charts"
	"github.com/pv/callpanel-go/internal/dashboard"
	"github.com/pv/callpanel-go/internal/workflow"
)

type Handlers struct {
	panel *dashboard.Panel
	hub   *SSEHub
}

func NewHandlers(panel *dashboard.Panel, hub *SSEHub) *Handlers {
	return &Handlers{
		panel: panel,
		hub:   hub,
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// statusResponse статус подключения для индикатора в шапке
type statusResponse struct {
	Connected    bool   `json:"connected"`
	Offline      bool   `json:"offline"`
	Ready        bool   `json:"ready"`
	SessionID    string `json:"sessionId"`
	SessionShort string `json:"sessionShort"`
	LastError    string `json:"lastError,omitempty"`
}

// GetStatus возвращает статус подключения
// GET /api/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.panel.Status()

	short := st.SessionID
	if len(short) > 8 {
		short = short[:8]
	}

	h.writeJSON(w, statusResponse{
		Connected:    st.Connected,
		Offline:      st.Offline,
		Ready:        h.panel.Ready(),
		SessionID:    st.SessionID,
		SessionShort: short,
		LastError:    st.LastError,
	})
}

// GetCharts возвращает наборы всех трёх панелей
// GET /api/charts
func (h *Handlers) GetCharts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"title":     h.panel.Title,
		"duration":  h.panel.DurationView(),
		"issues":    h.panel.Issues(),
		"hostility": h.panel.Hostility(),
	})
}

// GetChartPNG отдаёт панель в виде PNG
// GET /api/charts/{name}/png
func (h *Handlers) GetChartPNG(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	w.Header().Set("Content-Type", "image/png")

	var err error
	switch name {
	case "duration":
		err = charts.RenderDuration(h.panel.DurationView(), w)
	case "issues":
		err = charts.RenderIssues(h.panel.Issues(), w)
	case "hostility":
		err = charts.RenderHostility(h.panel.Hostility(), w)
	default:
		h.writeError(w, http.StatusNotFound, "unknown chart: "+name)
		return
	}

	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// editResponse состояние сессии редактирования после каждой операции
type editResponse struct {
	State    workflow.State `json:"state"`
	Email    string         `json:"email,omitempty"`
	Draft    interface{}    `json:"draft,omitempty"`
	Previous interface{}    `json:"previous,omitempty"`
}

func (h *Handlers) writeEditState(w http.ResponseWriter) {
	s := h.panel.Session()
	resp := editResponse{
		State: s.State(),
		Email: s.Email(),
	}
	if draft := s.Draft(); draft != nil {
		resp.Draft = draft
	}
	if prev := s.Previous(); prev != nil {
		resp.Previous = prev
	}
	h.writeJSON(w, resp)
}

// writeWorkflowError переводит ошибки машины состояний в HTTP статусы.
// 500 здесь не бывает: любая ошибка редактирования ожидаема.
func (h *Handlers) writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrBadState):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrSaveFailed):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.writeError(w, http.StatusBadRequest, err.Error())
	}
}

// EditOpen открывает сессию редактирования
// POST /api/edit/open
func (h *Handlers) EditOpen(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.OpenEdit(); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeEditState(w)
}

// EditKey принимает email
// POST /api/edit/key {"email": "..."}
func (h *Handlers) EditKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.panel.Session().SubmitKey(r.Context(), body.Email); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeEditState(w)
}

// EditConfirm подтверждает перезапись существующих данных
// POST /api/edit/confirm
func (h *Handlers) EditConfirm(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Session().Confirm(); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeEditState(w)
}

// EditBack возвращает к вводу email с шага подтверждения
// POST /api/edit/back
func (h *Handlers) EditBack(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Session().Back(); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeEditState(w)
}

// EditField обновляет счётчик корзины черновика
// POST /api/edit/field {"index": 0, "value": "5000"}
func (h *Handlers) EditField(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Index int    `json:"index"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.panel.Session().ChangeField(body.Index, body.Value); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeEditState(w)
}

// EditSave сохраняет черновик
// POST /api/edit/save
func (h *Handlers) EditSave(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Session().Save(r.Context()); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	h.writeEditState(w)
}

// EditCancel закрывает сессию, отбрасывая черновик
// POST /api/edit/cancel
func (h *Handlers) EditCancel(w http.ResponseWriter, r *http.Request) {
	h.panel.Session().Cancel()
	h.writeEditState(w)
}
