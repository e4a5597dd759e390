package form

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testCatalogYAML = `
welcome: "Hi there!"
templates:
  - title: Feedback
    complete: "Thanks!"
    entries:
      - title: Name
        kind: text
        incorrect: "Enter a name."
      - title: Age
        kind: number
        incorrect: "Numbers only."
  - title: Event
    active: false
    complete: "Submitted."
    entries:
      - title: Date
        kind: date
        incorrect: "Bad date."
      - title: Kind
        kind: oneof
        incorrect: "Pick one."
        options: [concert, meetup]
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forms.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog(writeCatalog(t, testCatalogYAML), CatalogOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cat.Welcome != "Hi there!" {
		t.Fatalf("welcome = %q", cat.Welcome)
	}
	if len(cat.All()) != 2 {
		t.Fatalf("template count = %d", len(cat.All()))
	}
	for i, tpl := range cat.All() {
		if tpl.Idx() != i {
			t.Fatalf("template %q idx = %d, expected %d", tpl.Title, tpl.Idx(), i)
		}
	}
	if active := cat.Active(); len(active) != 1 || active[0].Title != "Feedback" {
		t.Fatalf("active templates = %v", active)
	}

	tpl, err := cat.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tpl.Title != "Event" || tpl.Active() {
		t.Fatalf("unexpected template: %+v", tpl)
	}
	tpl.Activate()
	if len(cat.Active()) != 2 {
		t.Fatal("activate did not take effect")
	}
	tpl.Activate()
	if len(cat.Active()) != 2 {
		t.Fatal("activate is not idempotent")
	}
	tpl.Deactivate()
	if len(cat.Active()) != 1 {
		t.Fatal("deactivate did not take effect")
	}
}

func TestLoadCatalogRejectsDuplicateEntryTitles(t *testing.T) {
	const dup = `
templates:
  - title: Broken
    complete: "done"
    entries:
      - title: Name
        kind: text
      - title: Name
        kind: text
`
	if _, err := LoadCatalog(writeCatalog(t, dup), CatalogOptions{}); err == nil {
		t.Fatal("expected duplicate title error")
	}
}

func TestLoadCatalogRejectsUnknownKind(t *testing.T) {
	const bad = `
templates:
  - title: Broken
    complete: "done"
    entries:
      - title: X
        kind: telepathy
`
	if _, err := LoadCatalog(writeCatalog(t, bad), CatalogOptions{}); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestLoadCatalogLaxBypassesDateRule(t *testing.T) {
	cat, err := LoadCatalog(writeCatalog(t, testCatalogYAML), CatalogOptions{Lax: true})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tpl, err := cat.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	date, err := tpl.Get(0)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if !date.Validate(context.Background(), "whenever") {
		t.Fatal("lax catalog still validates dates")
	}
}
