package form

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mkravets/formgate/core/logger"
	"log/slog"
)

var (
	// ErrNoEntries is returned when a stepper is built without a
	// template and without an explicit entries+complete pair.
	ErrNoEntries = errors.New("stepper: no entries to walk")
	// ErrAlreadyStarted is returned by Start on a stepper past step 0.
	ErrAlreadyStarted = errors.New("stepper: already started, use Forward")
	// ErrSessionGone marks input arriving for a session whose backing
	// state was already cleared. Callers abort silently.
	ErrSessionGone = errors.New("stepper: session state is gone")
)

// Prompter delivers stepper output to the user who owns the session.
// A nil button list means "keep whatever default keyboard applies".
type Prompter interface {
	Prompt(ctx context.Context, text string, buttons []string) error
}

// Session persists per-fill state: the current namespaced state marker
// plus the partial answer map. A cleared or expired session reports an
// empty state and empty data rather than an error.
type Session interface {
	State(ctx context.Context, sid string) (string, error)
	SetState(ctx context.Context, sid, state string) error
	SetValue(ctx context.Context, sid, key, value string) error
	Data(ctx context.Context, sid string) (map[string]string, error)
	Clear(ctx context.Context, sid string) error
}

// StepperOptions configure construction. Either Template or the
// Entries+Complete pair must be set.
type StepperOptions struct {
	Template *Template
	Entries  []*Entry
	Complete string

	// CancelLabel, when set, is appended as the last reply button of
	// every prompt.
	CancelLabel string
}

// Stepper drives one user through one template's entries, one at a
// time. States are namespaced with the session id so concurrent fills
// of the same template never collide. Steps only move forward.
type Stepper struct {
	id       string
	entries  []*Entry
	complete string
	cancel   string

	prompter Prompter
	sess     Session

	mu   sync.Mutex
	step int

	resOnce sync.Once
	resCh   chan struct{}
	results map[string]string
}

// NewStepper builds a stepper for one session. An empty id gets a
// generated one.
func NewStepper(id string, sess Session, prompter Prompter, opts StepperOptions) (*Stepper, error) {
	entries := opts.Entries
	complete := opts.Complete
	if opts.Template != nil {
		entries = opts.Template.Entries()
		complete = opts.Template.Complete
	}
	if len(entries) == 0 || complete == "" {
		return nil, ErrNoEntries
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Stepper{
		id:       id,
		entries:  entries,
		complete: complete,
		cancel:   opts.CancelLabel,
		prompter: prompter,
		sess:     sess,
		resCh:    make(chan struct{}),
	}, nil
}

// ID returns the session id.
func (s *Stepper) ID() string { return s.id }

// Step returns the current step counter.
func (s *Stepper) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// stateKey namespaces an entry title with the session id.
func (s *Stepper) stateKey(e *Entry) string {
	return s.id + ":" + e.Title
}

// StateKeys returns every namespaced state this stepper can occupy, in
// step order. The app uses them to build its session routing table.
func (s *Stepper) StateKeys() []string {
	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = s.stateKey(e)
	}
	return keys
}

// Start sends the first prompt. It fails on a stepper past step 0.
func (s *Stepper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.step != 0 {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()
	return s.Forward(ctx)
}

// Forward prompts the entry at the current step, moves the session into
// that entry's namespaced state, and increments the step counter.
func (s *Stepper) Forward(ctx context.Context) error {
	s.mu.Lock()
	if s.step >= len(s.entries) {
		s.mu.Unlock()
		return ErrSessionGone
	}
	entry := s.entries[s.step]
	s.mu.Unlock()

	if err := s.prompter.Prompt(ctx, promptText(entry), s.promptButtons(entry)); err != nil {
		return err
	}
	if err := s.sess.SetState(ctx, s.id, s.stateKey(entry)); err != nil {
		return err
	}

	s.mu.Lock()
	s.step++
	step := s.step
	s.mu.Unlock()

	logger.Debug(ctx, "form", "stepper.forward",
		slog.String("session", s.id),
		slog.String("entry", entry.Title),
		slog.Int("step", step),
	)
	return nil
}

// Validate checks the incoming answer against the entry that produced
// the current prompt. The state transition happened when the prompt was
// sent, so the input is checked one step behind the counter. The skip
// token passes for skippable entries without touching the type rule.
// On failure the entry's incorrect message is sent and false returned.
func (s *Stepper) Validate(ctx context.Context, input string) (bool, error) {
	state, err := s.sess.State(ctx, s.id)
	if err != nil {
		return false, err
	}
	if state == "" {
		return false, ErrSessionGone
	}

	entry, err := s.laggedEntry(state)
	if err != nil {
		return false, err
	}

	if input == SkipToken && entry.Skippable {
		return true, nil
	}
	if !entry.Validate(ctx, input) {
		logger.Debug(ctx, "form", "stepper.invalid",
			slog.String("session", s.id),
			slog.String("entry", entry.Title),
		)
		if err := s.prompter.Prompt(ctx, entry.Incorrect, s.promptButtons(entry)); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Update records the raw answer under the session's current namespaced
// state key. The step counter is re-derived from persisted state so a
// stepper rebuilt mid-session picks up where the previous handler left.
func (s *Stepper) Update(ctx context.Context, input string) error {
	state, err := s.sess.State(ctx, s.id)
	if err != nil {
		return err
	}
	if state == "" {
		return ErrSessionGone
	}

	pos := s.matchStep(state)
	if pos < 0 {
		return ErrSessionGone
	}
	s.mu.Lock()
	s.step = pos + 1
	s.mu.Unlock()

	return s.sess.SetValue(ctx, s.id, state, input)
}

// Ended reports whether every entry has been walked.
func (s *Stepper) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step == len(s.entries)
}

// Close publishes the collected answers, sends the completion message,
// and clears the session. Keys lose their session-id prefix; skipped
// entries are dropped. Publication happens at most once per stepper.
func (s *Stepper) Close(ctx context.Context) error {
	data, err := s.sess.Data(ctx, s.id)
	if err != nil {
		return err
	}

	results := make(map[string]string, len(data))
	prefix := s.id + ":"
	for key, value := range data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if value == SkipToken {
			continue
		}
		results[strings.TrimPrefix(key, prefix)] = value
	}
	s.publish(results)

	logger.Debug(ctx, "form", "stepper.close",
		slog.String("session", s.id),
		slog.Int("count", len(results)),
	)

	if err := s.prompter.Prompt(ctx, s.complete, nil); err != nil {
		return err
	}
	return s.sess.Clear(ctx, s.id)
}

// Cancel wipes the session state and releases any result waiters with
// a nil map. Safe to call on a never-started or finished stepper.
func (s *Stepper) Cancel(ctx context.Context) error {
	s.publish(nil)
	logger.Debug(ctx, "form", "stepper.cancel",
		slog.String("session", s.id),
	)
	return s.sess.Clear(ctx, s.id)
}

// Results blocks until Close or Cancel publishes, then returns the
// answer map. Every waiter observes the same single publication; a
// cancelled stepper yields nil. A publication that landed before the
// context cancellation is still returned.
func (s *Stepper) Results(ctx context.Context) (map[string]string, error) {
	select {
	case <-s.resCh:
		return s.results, nil
	case <-ctx.Done():
	}
	select {
	case <-s.resCh:
		return s.results, nil
	default:
		return nil, ctx.Err()
	}
}

func (s *Stepper) publish(results map[string]string) {
	s.resOnce.Do(func() {
		s.results = results
		close(s.resCh)
	})
}

// laggedEntry resolves the entry being answered: the one whose
// namespaced state the session currently occupies.
func (s *Stepper) laggedEntry(state string) (*Entry, error) {
	pos := s.matchStep(state)
	if pos < 0 {
		return nil, ErrSessionGone
	}
	return s.entries[pos], nil
}

// matchStep scans the entry titles for the one matching the namespaced
// state identifier. Returns -1 when the state belongs to nobody, e.g.
// after a concurrent cancel replaced it.
func (s *Stepper) matchStep(state string) int {
	for i, e := range s.entries {
		if state == s.stateKey(e) {
			return i
		}
	}
	return -1
}

func promptText(e *Entry) string {
	if e.Description == "" {
		return e.Title
	}
	return e.Title + "\n\n" + e.Description
}

// promptButtons composes the reply keyboard for an entry: its options,
// the skip token for skippable entries, and the cancel label last.
func (s *Stepper) promptButtons(e *Entry) []string {
	buttons := append([]string(nil), e.Options...)
	if e.Skippable {
		buttons = append(buttons, SkipToken)
	}
	if s.cancel != "" {
		buttons = append(buttons, s.cancel)
	}
	return buttons
}
