package form

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSession struct {
	mu     sync.Mutex
	states map[string]string
	data   map[string]map[string]string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		states: make(map[string]string),
		data:   make(map[string]map[string]string),
	}
}

func (f *fakeSession) State(_ context.Context, sid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[sid], nil
}

func (f *fakeSession) SetState(_ context.Context, sid, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[sid] = state
	return nil
}

func (f *fakeSession) SetValue(_ context.Context, sid, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[sid] == nil {
		f.data[sid] = make(map[string]string)
	}
	f.data[sid][key] = value
	return nil
}

func (f *fakeSession) Data(_ context.Context, sid string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.data[sid]))
	for k, v := range f.data[sid] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSession) Clear(_ context.Context, sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, sid)
	delete(f.data, sid)
	return nil
}

type fakePrompter struct {
	mu      sync.Mutex
	prompts []string
	buttons [][]string
}

func (f *fakePrompter) Prompt(_ context.Context, text string, buttons []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, text)
	f.buttons = append(f.buttons, buttons)
	return nil
}

func (f *fakePrompter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakePrompter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func feedbackTemplate(t *testing.T) *Template {
	t.Helper()
	entries := []*Entry{
		NewEntry(KindText, "Name", "", "Please enter a valid name.", nil, false),
		NewEntry(KindNumber, "Age", "", "Age must be a number.", nil, false),
	}
	tpl, err := NewTemplate("Feedback", "", "Thanks for your feedback!", entries, true)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	return tpl
}

// answer mimics one inbound message: validate against the lagged entry,
// persist, advance or close.
func answer(t *testing.T, s *Stepper, input string) bool {
	t.Helper()
	ctx := context.Background()
	ok, err := s.Validate(ctx, input)
	if err != nil {
		t.Fatalf("validate %q: %v", input, err)
	}
	if !ok {
		return false
	}
	if err := s.Update(ctx, input); err != nil {
		t.Fatalf("update %q: %v", input, err)
	}
	if s.Ended() {
		if err := s.Close(ctx); err != nil {
			t.Fatalf("close: %v", err)
		}
	} else if err := s.Forward(ctx); err != nil {
		t.Fatalf("forward: %v", err)
	}
	return true
}

func TestStepperWalksFeedbackTemplate(t *testing.T) {
	ctx := context.Background()
	sess := newFakeSession()
	prompter := &fakePrompter{}

	s, err := NewStepper("s1", sess, prompter, StepperOptions{Template: feedbackTemplate(t)})
	if err != nil {
		t.Fatalf("new stepper: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := prompter.last(); got != "Name" {
		t.Fatalf("first prompt = %q, expected Name", got)
	}

	if !answer(t, s, "Alice") {
		t.Fatal("valid name rejected")
	}
	if got := prompter.last(); got != "Age" {
		t.Fatalf("second prompt = %q, expected Age", got)
	}

	if answer(t, s, "abc") {
		t.Fatal("non-numeric age accepted")
	}
	if got := prompter.last(); got != "Age must be a number." {
		t.Fatalf("expected incorrect message, got %q", got)
	}
	if s.Ended() {
		t.Fatal("ended after invalid input")
	}

	if !answer(t, s, "30") {
		t.Fatal("valid age rejected")
	}
	if !s.Ended() {
		t.Fatal("not ended after last answer")
	}

	results, err := s.Results(ctx)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results["Name"] != "Alice" || results["Age"] != "30" {
		t.Fatalf("unexpected results: %v", results)
	}
	if len(results) != 2 {
		t.Fatalf("unexpected result keys: %v", results)
	}
	if got := prompter.last(); got != "Thanks for your feedback!" {
		t.Fatalf("completion message = %q", got)
	}
	if state, _ := sess.State(ctx, "s1"); state != "" {
		t.Fatalf("session state not cleared: %q", state)
	}
}

func TestStepperPromptCountMatchesEntries(t *testing.T) {
	ctx := context.Background()
	sess := newFakeSession()
	prompter := &fakePrompter{}

	entries := []*Entry{
		NewEntry(KindText, "A", "", "bad", nil, false),
		NewEntry(KindText, "B", "", "bad", nil, false),
		NewEntry(KindText, "C", "", "bad", nil, false),
	}
	tpl, err := NewTemplate("Triple", "", "done", entries, true)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	s, err := NewStepper("", sess, prompter, StepperOptions{Template: tpl})
	if err != nil {
		t.Fatalf("new stepper: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, in := range []string{"1", "2"} {
		answer(t, s, in)
	}
	if s.Ended() {
		t.Fatal("ended early")
	}
	answer(t, s, "3")
	if !s.Ended() {
		t.Fatal("not ended")
	}
	// three entry prompts plus the completion message
	if prompter.count() != 4 {
		t.Fatalf("prompt count = %d, expected 4", prompter.count())
	}
}

func TestStepperSkipTokenDropsEntry(t *testing.T) {
	ctx := context.Background()
	sess := newFakeSession()
	prompter := &fakePrompter{}

	entries := []*Entry{
		NewEntry(KindText, "Name", "", "bad", nil, false),
		NewEntry(KindDate, "Birthday", "", "bad date", nil, true),
	}
	tpl, err := NewTemplate("Profile", "", "saved", entries, true)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	s, err := NewStepper("p1", sess, prompter, StepperOptions{Template: tpl})
	if err != nil {
		t.Fatalf("new stepper: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	answer(t, s, "Bob")
	if !answer(t, s, SkipToken) {
		t.Fatal("skip token rejected on skippable entry")
	}
	results, err := s.Results(ctx)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if _, ok := results["Birthday"]; ok {
		t.Fatalf("skipped entry present in results: %v", results)
	}
	if results["Name"] != "Bob" {
		t.Fatalf("unexpected results: %v", results)
	}
}

func TestStepperStartTwice(t *testing.T) {
	ctx := context.Background()
	s, err := NewStepper("x", newFakeSession(), &fakePrompter{}, StepperOptions{Template: feedbackTemplate(t)})
	if err != nil {
		t.Fatalf("new stepper: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start err = %v, expected ErrAlreadyStarted", err)
	}
}

func TestStepperConstructionErrors(t *testing.T) {
	if _, err := NewStepper("x", newFakeSession(), &fakePrompter{}, StepperOptions{}); !errors.Is(err, ErrNoEntries) {
		t.Fatalf("err = %v, expected ErrNoEntries", err)
	}
	if _, err := NewStepper("x", newFakeSession(), &fakePrompter{}, StepperOptions{
		Entries: []*Entry{NewEntry(KindText, "A", "", "bad", nil, false)},
	}); !errors.Is(err, ErrNoEntries) {
		t.Fatalf("entries without complete: err = %v, expected ErrNoEntries", err)
	}
	if _, err := NewStepper("x", newFakeSession(), &fakePrompter{}, StepperOptions{
		Entries:  []*Entry{NewEntry(KindText, "A", "", "bad", nil, false)},
		Complete: "done",
	}); err != nil {
		t.Fatalf("entries+complete: %v", err)
	}
}

func TestStepperClearedSessionAborts(t *testing.T) {
	ctx := context.Background()
	sess := newFakeSession()
	s, err := NewStepper("gone", sess, &fakePrompter{}, StepperOptions{Template: feedbackTemplate(t)})
	if err != nil {
		t.Fatalf("new stepper: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Clear(ctx, "gone"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Validate(ctx, "anything"); !errors.Is(err, ErrSessionGone) {
		t.Fatalf("validate err = %v, expected ErrSessionGone", err)
	}
	if err := s.Update(ctx, "anything"); !errors.Is(err, ErrSessionGone) {
		t.Fatalf("update err = %v, expected ErrSessionGone", err)
	}
}

func TestStepperResultsReleaseAllWaiters(t *testing.T) {
	ctx := context.Background()
	sess := newFakeSession()
	s, err := NewStepper("w", sess, &fakePrompter{}, StepperOptions{Template: feedbackTemplate(t)})
	if err != nil {
		t.Fatalf("new stepper: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	const waiters = 3
	got := make(chan map[string]string, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			res, err := s.Results(ctx)
			if err != nil {
				return
			}
			got <- res
		}()
	}

	answer(t, s, "Alice")
	answer(t, s, "30")

	for i := 0; i < waiters; i++ {
		select {
		case res := <-got:
			if res["Name"] != "Alice" {
				t.Fatalf("waiter %d got %v", i, res)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("waiter %d timed out", i)
		}
	}
}

func TestStepperCancelReleasesWaiters(t *testing.T) {
	ctx := context.Background()
	s, err := NewStepper("c", newFakeSession(), &fakePrompter{}, StepperOptions{Template: feedbackTemplate(t)})
	if err != nil {
		t.Fatalf("new stepper: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Cancel(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	res, err := s.Results(ctx)
	if err != nil {
		t.Fatalf("results after cancel: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil results after cancel, got %v", res)
	}
}

func TestStepperResultsSurviveContextCancel(t *testing.T) {
	ctx := context.Background()
	s, err := NewStepper("rc", newFakeSession(), &fakePrompter{}, StepperOptions{Template: feedbackTemplate(t)})
	if err != nil {
		t.Fatalf("new stepper: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	answer(t, s, "Alice")
	answer(t, s, "30")

	// The publication landed before the waiter's context died; it
	// must still be observable.
	dead, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Results(dead)
	if err != nil {
		t.Fatalf("results with dead context after publish: %v", err)
	}
	if res["Name"] != "Alice" {
		t.Fatalf("results = %v", res)
	}
}

func TestStepperResultsHonorContextBeforePublish(t *testing.T) {
	s, err := NewStepper("rb", newFakeSession(), &fakePrompter{}, StepperOptions{Template: feedbackTemplate(t)})
	if err != nil {
		t.Fatalf("new stepper: %v", err)
	}
	dead, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Results(dead); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
