package persona

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefault_BuiltinCatalog(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("builtin catalog failed to load: %v", err)
	}

	if r.DefaultID() != "grandma" {
		t.Errorf("expected default grandma, got %q", r.DefaultID())
	}
	want := []string{"grandma", "student", "angry_uncle"}
	if !reflect.DeepEqual(r.IDs(), want) {
		t.Errorf("IDs() = %v, want %v", r.IDs(), want)
	}

	for _, p := range r.All() {
		if p.Opener == "" {
			t.Errorf("%s: empty opener", p.ID)
		}
		if p.Style == "" {
			t.Errorf("%s: empty style", p.ID)
		}
		for _, intent := range []Intent{IntentThreat, IntentPayment, IntentCredential} {
			if len(p.Templates[intent]) < 2 {
				t.Errorf("%s: intent %s has %d templates, want >= 2", p.ID, intent, len(p.Templates[intent]))
			}
		}
		if len(p.Fallbacks) < 2 {
			t.Errorf("%s: want >= 2 fallbacks, got %d", p.ID, len(p.Fallbacks))
		}
	}
}

func TestGet_FallsBackToDefault(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	if got := r.Get("student"); got.Name != "Rohan_Gamer" {
		t.Errorf("Get(student).Name = %q", got.Name)
	}
	if got := r.Get("no-such-persona"); got.ID != "grandma" {
		t.Errorf("unknown id should resolve to default, got %q", got.ID)
	}
	if got := r.Get(""); got.ID != "grandma" {
		t.Errorf("empty id should resolve to default, got %q", got.ID)
	}
}

func TestRandomID_AlwaysInCatalog(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for i := 0; i < 300; i++ {
		id := r.RandomID()
		if !r.Has(id) {
			t.Fatalf("RandomID returned unknown id %q", id)
		}
		seen[id] = true
	}
	if len(seen) != r.Len() {
		t.Errorf("expected every persona to be picked in 300 draws, saw %v", seen)
	}
}

func TestBank(t *testing.T) {
	p := Persona{
		ID:        "x",
		Templates: map[Intent][]string{IntentThreat: {"t1", "t2"}},
		Fallbacks: []string{"f1"},
	}

	tests := []struct {
		intent Intent
		want   []string
	}{
		{IntentThreat, []string{"t1", "t2"}},
		{IntentPayment, []string{"f1"}},
		{IntentFallback, []string{"f1"}},
	}
	for _, tt := range tests {
		if got := p.Bank(tt.intent); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Bank(%s) = %v, want %v", tt.intent, got, tt.want)
		}
	}

	if got := (Persona{}).Fallback(); got == "" {
		t.Error("Fallback on empty persona should not be empty")
	}
}

func TestNew_Validation(t *testing.T) {
	ok := Persona{ID: "a", Name: "A", Opener: "hi", Fallbacks: []string{"eh?"}}

	tests := []struct {
		name      string
		defaultID string
		personas  []Persona
		wantErr   string
	}{
		{"empty catalog", "", nil, "empty"},
		{"missing id", "", []Persona{{Name: "A", Opener: "hi", Fallbacks: []string{"x"}}}, "missing id"},
		{"missing opener", "", []Persona{{ID: "a", Name: "A", Fallbacks: []string{"x"}}}, "missing opener"},
		{"missing fallback", "", []Persona{{ID: "a", Name: "A", Opener: "hi"}}, "fallback"},
		{"duplicate", "", []Persona{ok, ok}, "duplicate"},
		{"unknown default", "zzz", []Persona{ok}, "not in catalog"},
		{"unknown intent", "", []Persona{{ID: "a", Name: "A", Opener: "hi", Fallbacks: []string{"x"},
			Templates: map[Intent][]string{"smalltalk": {"hey"}}}}, "unknown intent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defaultID, tt.personas...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}

	r, err := New("", ok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.DefaultID() != "a" {
		t.Errorf("default should be first persona, got %q", r.DefaultID())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := `
default: clerk
personas:
  - id: clerk
    name: Mr. Clerk
    style: bored
    opener: "Yes?"
    templates:
      payment: ["Fill the form first."]
    fallbacks: ["Next please."]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	p := r.Get("clerk")
	if p.Opener != "Yes?" {
		t.Errorf("opener = %q", p.Opener)
	}
	if got := p.Bank(IntentPayment); len(got) != 1 || got[0] != "Fill the form first." {
		t.Errorf("payment bank = %v", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
