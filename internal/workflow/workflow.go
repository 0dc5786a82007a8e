package workflow

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"

	"github.com/pv/callpanel-go/internal/gateway"
	"github.com/pv/callpanel-go/internal/model"
)

var (
	ErrBadState     = errors.New("operation not allowed in current state")
	ErrInvalidEmail = errors.New("invalid email address")
	ErrBadIndex     = errors.New("bucket index out of range")
	ErrEmptyKey     = errors.New("email is not set")
	ErrSaveFailed   = errors.New("save failed")
)

// emailPattern базовая проверка формы local@domain.tld
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// State состояние сессии редактирования
type State string

const (
	StateIdle             State = "idle"
	StateCollectingKey    State = "collecting_key"
	StateCheckingExisting State = "checking_existing"
	StateConfirmOverwrite State = "confirm_overwrite"
	StateEditing          State = "editing"
	StateSaving           State = "saving"
)

// ApplyFunc применяет подтверждённый набор к отображаемым данным
type ApplyFunc func(model.ChartDataset)

// Session машина состояний редактирования набора.
// Одна активная модальная сессия; переходы только через методы.
type Session struct {
	gw     *gateway.Gateway
	apply  ApplyFunc
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	gen      int // счётчик поколений: отсекает завершение save из закрытой сессии
	email    string
	draft    model.ChartDataset
	previous model.ChartDataset // сохранённые ранее значения для шага подтверждения
}

// New создаёт сессию редактирования.
// apply вызывается при успешном сохранении с готовым набором.
func New(gw *gateway.Gateway, apply ApplyFunc, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		gw:     gw,
		apply:  apply,
		logger: logger.With("component", "workflow"),
		state:  StateIdle,
	}
}

// State возвращает текущее состояние
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Email возвращает введённый email
func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// Draft возвращает копию черновика
func (s *Session) Draft() model.ChartDataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// Previous возвращает ранее сохранённые значения (для шага подтверждения)
func (s *Session) Previous() model.ChartDataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previous.Clone()
}

// Open открывает сессию: черновик — копия отображаемого набора,
// ключ и кэш прежней записи очищены
func (s *Session) Open(current model.ChartDataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrBadState
	}

	s.draft = current.Clone()
	s.email = ""
	s.previous = nil
	s.state = StateCollectingKey
	return nil
}

// SubmitKey принимает email и проверяет наличие сохранённых данных.
// Найдена запись — переход к подтверждению перезаписи, нет записи или
// запрос не удался — сразу к редактированию.
func (s *Session) SubmitKey(ctx context.Context, email string) error {
	s.mu.Lock()
	if s.state != StateCollectingKey {
		s.mu.Unlock()
		return ErrBadState
	}
	if !emailPattern.MatchString(email) {
		s.mu.Unlock()
		return ErrInvalidEmail
	}
	s.email = email
	s.state = StateCheckingExisting
	gen := s.gen
	s.mu.Unlock()

	res := s.gw.Fetch(ctx, email)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Сессию закрыли, пока шёл запрос
	if s.gen != gen || s.state != StateCheckingExisting {
		return nil
	}

	switch res.Status {
	case gateway.FetchFound:
		s.previous = res.Dataset
		s.state = StateConfirmOverwrite
	case gateway.FetchFailed:
		// Не отличимо от нового ключа с точки зрения пользователя;
		// безопасный путь — редактирование без подтверждения
		s.logger.Warn("existence check failed, continuing to edit", "email", gateway.NormalizeKey(email))
		s.state = StateEditing
	default:
		s.state = StateEditing
	}
	return nil
}

// Back возвращает с шага подтверждения к вводу email
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfirmOverwrite {
		return ErrBadState
	}
	s.email = ""
	s.previous = nil
	s.state = StateCollectingKey
	return nil
}

// Confirm подтверждает перезапись и открывает редактирование
func (s *Session) Confirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfirmOverwrite {
		return ErrBadState
	}
	s.state = StateEditing
	return nil
}

// ChangeField обновляет счётчик корзины черновика.
// Нечисловой ввод даёт 0; поле value зеркалируется.
func (s *Session) ChangeField(index int, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEditing {
		return ErrBadState
	}
	if index < 0 || index >= len(s.draft) {
		return ErrBadIndex
	}

	count := model.ParseCount(raw)
	s.draft[index].Count = count
	s.draft[index].Value = count
	return nil
}

// Save сохраняет черновик через шлюз.
// Успех: отображаемый набор заменяется черновиком, сессия закрывается.
// Неудача: состояние остаётся Editing, черновик сохраняется для повтора.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateEditing {
		s.mu.Unlock()
		return ErrBadState
	}
	if s.email == "" {
		s.mu.Unlock()
		return ErrEmptyKey
	}
	email := s.email
	draft := s.draft.Clone()
	gen := s.gen
	s.state = StateSaving
	s.mu.Unlock()

	ok := s.gw.Save(ctx, email, draft)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Результат save из уже закрытой или переоткрытой сессии не применяется
	if s.gen != gen {
		s.logger.Debug("stale save completion ignored", "ok", ok)
		return nil
	}

	if !ok {
		s.state = StateEditing
		return ErrSaveFailed
	}

	if s.apply != nil {
		s.apply(draft)
	}
	s.reset()
	return nil
}

// Cancel закрывает сессию из любого состояния, отбрасывая черновик.
// Уже отправленный save дойдёт до конца, но его результат не применится.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return
	}
	s.reset()
}

// reset вызывается под блокировкой mu
func (s *Session) reset() {
	s.gen++
	s.state = StateIdle
	s.email = ""
	s.draft = nil
	s.previous = nil
}
