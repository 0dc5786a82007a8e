package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/pv/callpanel-go/internal/gateway"
	"github.com/pv/callpanel-go/internal/model"
	"github.com/pv/callpanel-go/internal/storage"
)

// harness собирает сессию поверх памяти и следит за отображаемым набором
type harness struct {
	gw        *gateway.Gateway
	session   *Session
	displayed model.ChartDataset
	applies   int
}

func newHarness(t *testing.T, store storage.DocumentStore) *harness {
	t.Helper()

	if store == nil {
		store = storage.NewMemoryStore()
	}
	h := &harness{
		gw:        gateway.New(store, nil),
		displayed: model.DefaultCallDuration(),
	}
	h.gw.Initialize(context.Background())
	h.session = New(h.gw, func(d model.ChartDataset) {
		h.displayed = d.Clone()
		h.applies++
	}, nil)
	return h
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	if err := h.session.Open(h.displayed); err != nil {
		t.Fatalf("open failed: %v", err)
	}
}

func TestEmailValidation(t *testing.T) {
	h := newHarness(t, nil)
	h.open(t)
	ctx := context.Background()

	// Невалидный адрес не двигает машину с места
	if err := h.session.SubmitKey(ctx, "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
	if h.session.State() != StateCollectingKey {
		t.Errorf("state changed after invalid email: %s", h.session.State())
	}

	if err := h.session.SubmitKey(ctx, "a@b.co"); err != nil {
		t.Fatalf("valid email rejected: %v", err)
	}
	if h.session.State() != StateEditing {
		t.Errorf("expected editing for fresh key, got %s", h.session.State())
	}
}

func TestFreshKeyGoesToEditing(t *testing.T) {
	h := newHarness(t, nil)
	h.open(t)

	if err := h.session.SubmitKey(context.Background(), "fresh@x.com"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if h.session.State() != StateEditing {
		t.Errorf("expected editing, got %s", h.session.State())
	}
	if h.session.Previous() != nil {
		t.Error("fresh key has previous values")
	}
}

func TestExistingKeyGoesToConfirm(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	saved := model.ChartDataset{
		{Name: "0-60s", Count: 100, Value: 100},
		{Name: "60-120s", Count: 200, Value: 200},
	}
	h.gw.Save(ctx, "u@x.com", saved)

	h.open(t)
	if err := h.session.SubmitKey(ctx, "u@x.com"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if h.session.State() != StateConfirmOverwrite {
		t.Fatalf("expected confirm_overwrite, got %s", h.session.State())
	}

	// На шаге подтверждения видны и старые значения, и черновик
	if !h.session.Previous().Equal(saved) {
		t.Errorf("previous values mismatch: %+v", h.session.Previous())
	}
	if !h.session.Draft().Equal(h.displayed) {
		t.Errorf("draft does not mirror displayed dataset")
	}
}

func TestFetchFailureGoesToEditing(t *testing.T) {
	h := newHarness(t, failingStore{})
	h.open(t)

	// Ошибка бэкенда неотличима от нового ключа: сразу редактирование
	if err := h.session.SubmitKey(context.Background(), "u@x.com"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if h.session.State() != StateEditing {
		t.Errorf("expected editing after fetch failure, got %s", h.session.State())
	}
}

func TestConfirmAndBack(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.gw.Save(ctx, "u@x.com", model.DefaultCallDuration())

	h.open(t)
	h.session.SubmitKey(ctx, "u@x.com")

	// Back возвращает к вводу email, а не закрывает модалку
	if err := h.session.Back(); err != nil {
		t.Fatalf("back failed: %v", err)
	}
	if h.session.State() != StateCollectingKey {
		t.Errorf("expected collecting_key, got %s", h.session.State())
	}
	if h.session.Email() != "" {
		t.Error("email not cleared after back")
	}

	h.session.SubmitKey(ctx, "u@x.com")
	if err := h.session.Confirm(); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if h.session.State() != StateEditing {
		t.Errorf("expected editing, got %s", h.session.State())
	}
}

func TestChangeField(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.open(t)
	h.session.SubmitKey(ctx, "u@x.com")

	if err := h.session.ChangeField(0, "5000"); err != nil {
		t.Fatalf("change field failed: %v", err)
	}
	draft := h.session.Draft()
	if draft[0].Count != 5000 || draft[0].Value != 5000 {
		t.Errorf("value not mirrored: count=%d value=%d", draft[0].Count, draft[0].Value)
	}

	// Нечисловой ввод даёт 0
	h.session.ChangeField(1, "garbage")
	draft = h.session.Draft()
	if draft[1].Count != 0 || draft[1].Value != 0 {
		t.Errorf("non-numeric input not coerced to 0: %+v", draft[1])
	}

	if err := h.session.ChangeField(42, "1"); !errors.Is(err, ErrBadIndex) {
		t.Errorf("expected ErrBadIndex, got %v", err)
	}
}

func TestSaveScenario(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.open(t)
	h.session.SubmitKey(ctx, "u@x.com")
	h.session.ChangeField(0, "5000")

	if err := h.session.Save(ctx); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Сессия закрыта, отображаемый набор заменён черновиком
	if h.session.State() != StateIdle {
		t.Errorf("expected idle after save, got %s", h.session.State())
	}
	if h.applies != 1 {
		t.Fatalf("expected 1 apply, got %d", h.applies)
	}
	if h.displayed[0].Count != 5000 || h.displayed[0].Value != 5000 {
		t.Errorf("displayed dataset not replaced: %+v", h.displayed[0])
	}

	// Повторный fetch возвращает отредактированный набор
	res := h.gw.Fetch(ctx, "u@x.com")
	if res.Status != gateway.FetchFound {
		t.Fatalf("saved record not found: %v", res.Status)
	}
	if res.Dataset[0].Count != 5000 {
		t.Errorf("persisted count = %d, want 5000", res.Dataset[0].Count)
	}
	if res.Dataset[1].Count != 3000 {
		t.Errorf("untouched bucket changed: %d", res.Dataset[1].Count)
	}
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	store := &flakyStore{inner: storage.NewMemoryStore(), failPuts: true}
	h := newHarness(t, store)
	ctx := context.Background()

	before := h.displayed.Clone()
	h.open(t)
	h.session.SubmitKey(ctx, "u@x.com")
	h.session.ChangeField(0, "5000")

	if err := h.session.Save(ctx); !errors.Is(err, ErrSaveFailed) {
		t.Fatalf("expected ErrSaveFailed, got %v", err)
	}

	// Черновик сохранён для повтора, отображаемый набор не изменился
	if h.session.State() != StateEditing {
		t.Errorf("expected editing after failed save, got %s", h.session.State())
	}
	if h.session.Draft()[0].Count != 5000 {
		t.Error("draft lost after failed save")
	}
	if !h.displayed.Equal(before) {
		t.Error("displayed dataset changed after failed save")
	}

	// Повтор после восстановления бэкенда проходит
	store.failPuts = false
	if err := h.session.Save(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if h.displayed[0].Count != 5000 {
		t.Error("displayed dataset not replaced after retry")
	}
}

func TestCancelSafety(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.gw.Save(ctx, "existing@x.com", model.DefaultCallDuration())

	before := h.displayed.Clone()

	// Отмена на каждом шаге возвращает в idle без побочных эффектов
	steps := []func(){
		func() {}, // collecting_key
		func() { h.session.SubmitKey(ctx, "existing@x.com") },                           // confirm_overwrite
		func() { h.session.SubmitKey(ctx, "fresh@x.com"); h.session.ChangeField(0, "9") }, // editing
	}

	for i, step := range steps {
		h.open(t)
		step()
		h.session.Cancel()

		if h.session.State() != StateIdle {
			t.Errorf("step %d: expected idle after cancel, got %s", i, h.session.State())
		}
		if !h.displayed.Equal(before) {
			t.Errorf("step %d: displayed dataset changed by cancel", i)
		}
		if h.session.Draft() != nil {
			t.Errorf("step %d: draft survived cancel", i)
		}
	}
}

func TestSaveEmptyKeyRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.open(t)

	// Save доступен только из editing
	if err := h.session.Save(context.Background()); !errors.Is(err, ErrBadState) {
		t.Errorf("expected ErrBadState, got %v", err)
	}
}

func TestReopenClearsPriorSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.gw.Save(ctx, "u@x.com", model.DefaultCallDuration())

	h.open(t)
	h.session.SubmitKey(ctx, "u@x.com")
	h.session.Cancel()

	h.open(t)
	if h.session.Email() != "" {
		t.Error("email survived reopen")
	}
	if h.session.Previous() != nil {
		t.Error("previous-record cache survived reopen")
	}
}

func TestStaleSaveNotApplied(t *testing.T) {
	store := &blockingStore{
		inner:   storage.NewMemoryStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := newHarness(t, store)
	ctx := context.Background()

	h.open(t)
	h.session.SubmitKey(ctx, "u@x.com")
	h.session.ChangeField(0, "5000")

	done := make(chan error, 1)
	go func() {
		done <- h.session.Save(ctx)
	}()

	// Сессию закрывают, пока save в полёте
	<-store.entered
	h.session.Cancel()
	close(store.release)

	if err := <-done; err != nil {
		t.Fatalf("save returned error: %v", err)
	}

	// Запись дошла до хранилища, но к отображаемому набору не применилась
	if h.applies != 0 {
		t.Error("stale save applied to displayed dataset")
	}
	if h.displayed[0].Count != 4000 {
		t.Errorf("displayed dataset changed: %d", h.displayed[0].Count)
	}
	if res := h.gw.Fetch(ctx, "u@x.com"); res.Status != gateway.FetchFound {
		t.Error("dispatched save did not run to completion")
	}
	if h.session.State() != StateIdle {
		t.Errorf("expected idle, got %s", h.session.State())
	}
}

// failingStore бэкенд, отвечающий ошибкой на всё
type failingStore struct{}

func (failingStore) Put(context.Context, string, model.PersistedRecord) error {
	return errors.New("backend down")
}

func (failingStore) Get(context.Context, string) (model.PersistedRecord, bool, error) {
	return model.PersistedRecord{}, false, errors.New("backend down")
}

func (failingStore) Close() error { return nil }

// flakyStore бэкенд с управляемым отказом записи
type flakyStore struct {
	inner    storage.DocumentStore
	failPuts bool
}

func (f *flakyStore) Put(ctx context.Context, docID string, rec model.PersistedRecord) error {
	if f.failPuts {
		return errors.New("transport failure")
	}
	return f.inner.Put(ctx, docID, rec)
}

func (f *flakyStore) Get(ctx context.Context, docID string) (model.PersistedRecord, bool, error) {
	return f.inner.Get(ctx, docID)
}

func (f *flakyStore) Close() error { return f.inner.Close() }

// blockingStore задерживает запись до сигнала release
type blockingStore struct {
	inner   storage.DocumentStore
	entered chan struct{}
	release chan struct{}
	once    bool
}

func (b *blockingStore) Put(ctx context.Context, docID string, rec model.PersistedRecord) error {
	if !b.once {
		b.once = true
		close(b.entered)
		<-b.release
	}
	return b.inner.Put(ctx, docID, rec)
}

func (b *blockingStore) Get(ctx context.Context, docID string) (model.PersistedRecord, bool, error) {
	return b.inner.Get(ctx, docID)
}

func (b *blockingStore) Close() error { return b.inner.Close() }
