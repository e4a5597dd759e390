package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/mkravets/formgate/internal/form"
	"github.com/mkravets/formgate/internal/session"
	"github.com/mkravets/formgate/internal/settings"
)

// chatContext fakes the telebot context for one update. Only the
// methods the run path touches are implemented; the rest panic through
// the embedded nil interface.
type chatContext struct {
	tele.Context

	user *tele.User

	mu    sync.Mutex
	store map[string]any
	sent  []string
}

func newChatContext(userID int64) *chatContext {
	return &chatContext{
		user:  &tele.User{ID: userID},
		store: make(map[string]any),
	}
}

func (c *chatContext) Sender() *tele.User  { return c.user }
func (c *chatContext) Chat() *tele.Chat    { return &tele.Chat{ID: c.user.ID} }
func (c *chatContext) Update() tele.Update { return tele.Update{ID: 1} }

func (c *chatContext) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

func (c *chatContext) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = v
}

func (c *chatContext) Send(what any, _ ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := what.(string); ok {
		c.sent = append(c.sent, s)
	}
	return nil
}

func (c *chatContext) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

const testCatalog = `welcome: "Hi"
templates:
  - title: "Suggestion"
    complete: "Thanks!"
    active: false
    entries:
      - title: "Text"
        kind: "text"
        incorrect: "Try again."
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forms.yml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func newTestApp(t *testing.T, catalogPath string, store settings.Store) (*App, *form.Catalog) {
	t.Helper()
	cat, err := form.LoadCatalog(catalogPath, form.CatalogOptions{})
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	set := settings.New(context.Background(), store, settings.Defaults{
		Admins:       []int64{1},
		MinApproval:  1,
		MinRejection: 1,
	})
	a := New(Options{
		Catalog:  cat,
		Sessions: session.NewMemoryStore(),
		Settings: set,
	})
	return a, cat
}

func TestTemplateActivationSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	catalogPath := writeCatalog(t)
	store, err := settings.NewJSONStore(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	a, cat := newTestApp(t, catalogPath, store)
	tpl, err := cat.Get(0)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if tpl.Active() {
		t.Fatal("template ships active, fixture broken")
	}

	// Admin flips the default-inactive template on.
	tpl.Activate()
	a.settings.SetTemplateActive(ctx, 0, true)

	// Fresh catalog and settings simulate a process restart.
	_, cat2 := newTestApp(t, catalogPath, store)
	tpl2, err := cat2.Get(0)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if !tpl2.Active() {
		t.Fatal("admin activation lost across restart")
	}
}

func TestStartRunSingleFlight(t *testing.T) {
	catalogPath := writeCatalog(t)
	store, err := settings.NewJSONStore(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	a, cat := newTestApp(t, catalogPath, store)
	tpl, err := cat.Get(0)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}

	const userID = 7
	const tries = 8
	ctxs := make([]*chatContext, tries)
	var wg sync.WaitGroup
	for i := range ctxs {
		ctxs[i] = newChatContext(userID)
		wg.Add(1)
		go func(c *chatContext) {
			defer wg.Done()
			if err := a.startRun(c, runForm, form.StepperOptions{}, tpl); err != nil {
				t.Errorf("start run: %v", err)
			}
		}(ctxs[i])
	}
	wg.Wait()

	a.mu.Lock()
	count := len(a.runs)
	r := a.runs[userID]
	a.mu.Unlock()
	if count != 1 {
		t.Fatalf("run count = %d, expected 1", count)
	}
	if r == nil {
		t.Fatal("winner run missing")
	}

	busy := 0
	for _, c := range ctxs {
		for _, msg := range c.sentTexts() {
			if msg == textBusy {
				busy++
			}
		}
	}
	if busy != tries-1 {
		t.Fatalf("busy replies = %d, expected %d", busy, tries-1)
	}
}

func TestDropRunCancelsResultConsumer(t *testing.T) {
	catalogPath := writeCatalog(t)
	store, err := settings.NewJSONStore(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	a, cat := newTestApp(t, catalogPath, store)
	tpl, err := cat.Get(0)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}

	const userID = 9
	c := newChatContext(userID)
	if err := a.startRun(c, runForm, form.StepperOptions{}, tpl); err != nil {
		t.Fatalf("start run: %v", err)
	}
	a.mu.Lock()
	r := a.runs[userID]
	a.mu.Unlock()
	if r == nil {
		t.Fatal("run not registered")
	}

	a.dropRun(userID)
	select {
	case <-r.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dropped run's context never cancelled")
	}
	if a.InProgress(userID) {
		t.Fatal("dropped run still routed")
	}
}
