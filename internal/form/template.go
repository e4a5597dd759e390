package form

import (
	"fmt"
	"sync"
)

// Template is an ordered form definition. The entry order defines step
// order and never changes after load; only the active flag is mutable.
type Template struct {
	Title       string
	Description string
	// Complete is the message sent when the form is finished.
	Complete string

	entries []*Entry

	mu     sync.Mutex
	active bool
	idx    int
	idxSet bool
}

// NewTemplate builds a template. Entry titles must be unique since they
// double as state keys and result keys.
func NewTemplate(title, description, complete string, entries []*Entry, active bool) (*Template, error) {
	if title == "" {
		return nil, fmt.Errorf("template title is required")
	}
	if complete == "" {
		return nil, fmt.Errorf("template %q has no completion message", title)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("template %q has no entries", title)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Title == "" {
			return nil, fmt.Errorf("template %q has an entry without a title", title)
		}
		if _, dup := seen[e.Title]; dup {
			return nil, fmt.Errorf("template %q has duplicate entry title %q", title, e.Title)
		}
		seen[e.Title] = struct{}{}
	}
	return &Template{
		Title:       title,
		Description: description,
		Complete:    complete,
		entries:     entries,
		active:      active,
	}, nil
}

// Entries returns the entry list in step order.
func (t *Template) Entries() []*Entry {
	return t.entries
}

// Get returns the entry at position i.
func (t *Template) Get(i int) (*Entry, error) {
	if i < 0 || i >= len(t.entries) {
		return nil, fmt.Errorf("template %q has no entry %d", t.Title, i)
	}
	return t.entries[i], nil
}

// Len reports the number of entries.
func (t *Template) Len() int { return len(t.entries) }

// Active reports whether the template is offered to users.
func (t *Template) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Activate marks the template active. Idempotent.
func (t *Template) Activate() {
	t.mu.Lock()
	t.active = true
	t.mu.Unlock()
}

// Deactivate marks the template inactive. Idempotent.
func (t *Template) Deactivate() {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
}

// Idx returns the stable positional index assigned at registration.
func (t *Template) Idx() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idx
}

// setIdx assigns the registry index. The assignment happens exactly once.
func (t *Template) setIdx(idx int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.idxSet {
		return fmt.Errorf("template %q already has index %d", t.Title, t.idx)
	}
	t.idx = idx
	t.idxSet = true
	return nil
}
