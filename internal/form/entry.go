package form

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Kind selects the validation semantics of an entry.
type Kind string

const (
	KindText   Kind = "text"
	KindNumber Kind = "number"
	KindDate   Kind = "date"
	KindOneOf  Kind = "oneof"
	KindFile   Kind = "file"
)

// SkipToken is the reply-button label that skips a skippable entry.
// It always validates regardless of the entry kind.
const SkipToken = "Skip"

// ValidatorFunc checks a raw answer. It may perform I/O, e.g. probing
// that a channel id is reachable before accepting it.
type ValidatorFunc func(ctx context.Context, raw string) bool

// dateLayouts lists the accepted date formats in match order.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"01-02-2006",
	"2006.01.02",
	"02.01.2006",
	"01.02.2006",
}

// Entry is one typed field definition within a template. Entries are
// built once at catalog load and never mutated afterwards.
type Entry struct {
	Title       string
	Description string
	// Incorrect is the reply sent when the answer fails validation.
	Incorrect string
	Options   []string
	Skippable bool
	Kind      Kind

	validator ValidatorFunc
}

// NewEntry builds an entry with the default validator for its kind.
func NewEntry(kind Kind, title, description, incorrect string, options []string, skippable bool) *Entry {
	e := &Entry{
		Title:       title,
		Description: description,
		Incorrect:   incorrect,
		Options:     options,
		Skippable:   skippable,
		Kind:        kind,
	}
	e.validator = kindValidator(kind, options)
	return e
}

// SetValidator replaces the default kind validator with a custom predicate.
func (e *Entry) SetValidator(fn ValidatorFunc) {
	if fn != nil {
		e.validator = fn
	}
}

// SetLax disables the type rule for date and one-of entries. Used by the
// debug profile so forms can be walked with arbitrary input.
func (e *Entry) SetLax() {
	if e.Kind == KindDate || e.Kind == KindOneOf {
		e.validator = func(context.Context, string) bool { return true }
	}
}

// Validate checks the raw answer against the entry's rule.
func (e *Entry) Validate(ctx context.Context, raw string) bool {
	if e.validator == nil {
		return true
	}
	return e.validator(ctx, raw)
}

// Answer extracts this entry's value from a collected result map and
// casts it to the entry's base type: int for number entries, string
// otherwise. The second return is false when the entry was skipped.
func (e *Entry) Answer(results map[string]string) (any, bool) {
	raw, ok := results[e.Title]
	if !ok {
		return nil, false
	}
	if e.Kind == KindNumber {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return raw, true
		}
		return n, true
	}
	return raw, true
}

func kindValidator(kind Kind, options []string) ValidatorFunc {
	switch kind {
	case KindNumber:
		return func(_ context.Context, raw string) bool { return digitsOnly(raw) }
	case KindDate:
		return func(_ context.Context, raw string) bool { return validDate(raw) }
	case KindOneOf:
		opts := append([]string(nil), options...)
		return func(_ context.Context, raw string) bool {
			for _, o := range opts {
				if raw == o {
					return true
				}
			}
			return false
		}
	case KindFile:
		return func(_ context.Context, raw string) bool {
			return strings.TrimSpace(raw) != ""
		}
	default:
		// text accepts anything
		return func(context.Context, string) bool { return true }
	}
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
