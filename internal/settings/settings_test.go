package settings

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestSettings(t *testing.T) (*Settings, *JSONStore) {
	t.Helper()
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	s := New(context.Background(), store, Defaults{
		Admins:       []int64{100},
		MinApproval:  2,
		MinRejection: 2,
	})
	return s, store
}

func TestSettingsAdminRoster(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSettings(t)

	if !s.IsAdmin(100) {
		t.Fatal("bootstrap admin missing")
	}
	s.AddAdmin(ctx, 200)
	s.AddAdmin(ctx, 200)
	if got := len(s.Admins()); got != 2 {
		t.Fatalf("admin count = %d after duplicate add", got)
	}
	s.RemoveAdmin(ctx, 100)
	if s.IsAdmin(100) {
		t.Fatal("removed admin still present")
	}
	s.RemoveAdmin(ctx, 100)
	if got := len(s.Admins()); got != 1 {
		t.Fatalf("admin count = %d after double remove", got)
	}
}

func TestSettingsQuorumClamped(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSettings(t)

	s.SetQuorum(ctx, 0, -3)
	if s.MinApproval() != 1 || s.MinRejection() != 1 {
		t.Fatalf("quorum = %d/%d, expected clamp to 1", s.MinApproval(), s.MinRejection())
	}
	s.SetQuorum(ctx, 3, 2)
	if s.MinApproval() != 3 || s.MinRejection() != 2 {
		t.Fatalf("quorum = %d/%d", s.MinApproval(), s.MinRejection())
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSettings(t)

	s.AddAdmin(ctx, 200)
	s.AddModerator(ctx, 300)
	s.SetChannel(ctx, -1001234567890)
	s.SetQuorum(ctx, 3, 1)
	s.SetTemplateActive(ctx, 0, false)
	s.SetTemplateActive(ctx, 2, false)
	s.SetTemplateActive(ctx, 2, true)

	reloaded := New(ctx, store, Defaults{MinApproval: 1, MinRejection: 1})
	want := s.Snapshot()
	got := reloaded.Snapshot()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip mismatch:\n want %+v\n got  %+v", want, got)
	}
	if reloaded.TemplateActive(0) {
		t.Fatal("deactivated template active after reload")
	}
	if !reloaded.TemplateActive(2) {
		t.Fatal("reactivated template inactive after reload")
	}
	if reloaded.Channel() != -1001234567890 {
		t.Fatalf("channel = %d", reloaded.Channel())
	}
}

func TestSettingsLoadFallsBackOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	writeFile(t, path, "{not json")

	s := New(context.Background(), store, Defaults{Admins: []int64{1}, MinApproval: 1, MinRejection: 1})
	if !s.IsAdmin(1) {
		t.Fatal("defaults not applied after corrupt load")
	}
}

func TestSettingsActivationOverrideSurvivesReload(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSettings(t)

	// Turn on a template that ships inactive; a restart must keep it on.
	s.SetTemplateActive(ctx, 1, true)
	s.SetTemplateActive(ctx, 3, false)

	reloaded := New(ctx, store, Defaults{MinApproval: 1, MinRejection: 1})
	if active, ok := reloaded.TemplateOverride(1); !ok || !active {
		t.Fatalf("override for 1 = (%v, %v), expected recorded active", active, ok)
	}
	if active, ok := reloaded.TemplateOverride(3); !ok || active {
		t.Fatalf("override for 3 = (%v, %v), expected recorded inactive", active, ok)
	}
	if _, ok := reloaded.TemplateOverride(0); ok {
		t.Fatal("untouched template has an override")
	}
	if !reloaded.TemplateActive(0) {
		t.Fatal("untouched template not defaulting to active")
	}
}

func TestSettingsEmptyAdminRosterSurvivesReload(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSettings(t)

	s.RemoveAdmin(ctx, 100)
	if got := len(s.Admins()); got != 0 {
		t.Fatalf("admin count = %d after removing the last admin", got)
	}

	reloaded := New(ctx, store, Defaults{Admins: []int64{100}, MinApproval: 1, MinRejection: 1})
	if reloaded.IsAdmin(100) {
		t.Fatal("bootstrap default resurrected a removed admin")
	}
	if got := len(reloaded.Admins()); got != 0 {
		t.Fatalf("admin count = %d after reload", got)
	}
}

func TestSettingsReviewers(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSettings(t)

	s.AddModerator(ctx, 300)
	if !s.IsReviewer(100) {
		t.Fatal("admin not a reviewer")
	}
	if !s.IsReviewer(300) {
		t.Fatal("moderator not a reviewer")
	}
	if s.IsReviewer(999) {
		t.Fatal("stranger is a reviewer")
	}
	s.RemoveModerator(ctx, 300)
	if s.IsReviewer(300) {
		t.Fatal("removed moderator still a reviewer")
	}

	s.AddModerator(ctx, 300)
	s.AddModerator(ctx, 100)
	got := s.Reviewers()
	if !reflect.DeepEqual(got, []int64{100, 300}) {
		t.Fatalf("reviewers = %v", got)
	}
}
