package dashboard

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pv/callpanel-go/internal/gateway"
	"github.com/pv/callpanel-go/internal/model"
	"github.com/pv/callpanel-go/internal/workflow"
)

// ChangeCallback вызывается при замене отображаемого набора
type ChangeCallback func(dataset model.ChartDataset)

// Panel владеет состоянием дашборда: отображаемые наборы трёх панелей,
// статус подключения и единственная сессия редактирования.
type Panel struct {
	Title string

	gw      *gateway.Gateway
	session *workflow.Session
	logger  *slog.Logger

	mu       sync.RWMutex
	duration model.ChartDataset
	issues   []model.IssueDatum
	hostile  []model.HostilityDatum
	ready    bool

	onChange ChangeCallback
}

// New создаёт панель с наборами по умолчанию
func New(gw *gateway.Gateway, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Panel{
		Title:    "Call Duration Analysis",
		gw:       gw,
		logger:   logger.With("component", "dashboard"),
		duration: model.DefaultCallDuration(),
		issues:   model.DefaultIssues(),
		hostile:  model.DefaultHostility(),
	}
	p.session = workflow.New(gw, p.applyDataset, logger)
	return p
}

// Start инициализирует шлюз; панель готова к работе после возврата
func (p *Panel) Start(ctx context.Context) gateway.Session {
	sess := p.gw.Initialize(ctx)

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()

	if sess.Offline {
		p.logger.Warn("running in offline mode, saves will not persist")
	}
	return sess
}

// Session возвращает сессию редактирования
func (p *Panel) Session() *workflow.Session {
	return p.session
}

// Ready возвращает true после инициализации шлюза;
// до этого вход в редактирование закрыт
func (p *Panel) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// Status возвращает статус подключения для индикатора
func (p *Panel) Status() gateway.Status {
	return p.gw.Status()
}

// DurationView возвращает отображаемый набор длительности звонков
// с вычисленными долями. Доли пересчитываются при каждом чтении.
func (p *Panel) DurationView() model.ChartDataset {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.duration.WithPercentages()
}

// Issues возвращает набор причин неудачных звонков
func (p *Panel) Issues() []model.IssueDatum {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.IssueDatum, len(p.issues))
	copy(out, p.issues)
	return out
}

// Hostility возвращает набор уровней агрессивности
func (p *Panel) Hostility() []model.HostilityDatum {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.HostilityDatum, len(p.hostile))
	copy(out, p.hostile)
	return out
}

// OpenEdit открывает сессию редактирования поверх текущего набора
func (p *Panel) OpenEdit() error {
	if !p.Ready() {
		return workflow.ErrBadState
	}

	p.mu.RLock()
	current := p.duration.Clone()
	p.mu.RUnlock()

	return p.session.Open(current)
}

// SetChangeCallback устанавливает callback на замену отображаемого набора
func (p *Panel) SetChangeCallback(cb ChangeCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = cb
}

// applyDataset атомарно заменяет отображаемый набор подтверждённым
func (p *Panel) applyDataset(dataset model.ChartDataset) {
	p.mu.Lock()
	p.duration = dataset.Clone()
	cb := p.onChange
	p.mu.Unlock()

	p.logger.Info("displayed dataset replaced", "buckets", len(dataset))
	if cb != nil {
		cb(dataset.Clone())
	}
}
