package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"
)

// Intent is the category an incoming message is classified into.
type Intent string

// Intents in priority order, highest first.
const (
	IntentThreat     Intent = "threat"
	IntentPayment    Intent = "payment"
	IntentCredential Intent = "credential"
	IntentFallback   Intent = "fallback"
)

// Persona is a fictitious character profile used to answer scammers.
type Persona struct {
	ID        string              `yaml:"id" json:"id"`
	Name      string              `yaml:"name" json:"name"`
	Role      string              `yaml:"role" json:"role"`
	Style     string              `yaml:"style" json:"style"`
	Strategy  string              `yaml:"strategy" json:"strategy"`
	Opener    string              `yaml:"opener" json:"opener"`
	Templates map[Intent][]string `yaml:"templates" json:"templates"`
	Fallbacks []string            `yaml:"fallbacks" json:"fallbacks"`
}

// Bank returns the canned lines for an intent. The fallback intent, and any
// intent without templates, resolves to the generic fallback lines.
func (p Persona) Bank(intent Intent) []string {
	if intent != IntentFallback {
		if lines := p.Templates[intent]; len(lines) > 0 {
			return lines
		}
	}
	return p.Fallbacks
}

// Fallback returns the first generic fallback line.
func (p Persona) Fallback() string {
	if len(p.Fallbacks) > 0 {
		return p.Fallbacks[0]
	}
	return builtinFallback
}

const builtinFallback = "Sorry, I didn't catch that. Can you say it again?"

type catalog struct {
	Default  string    `yaml:"default"`
	Personas []Persona `yaml:"personas"`
}

//go:embed personas.yaml
var builtin []byte

// Registry is the read-only persona catalog shared by all sessions.
type Registry struct {
	byID      map[string]Persona
	ids       []string
	defaultID string
}

// Default parses the embedded catalog.
func Default() (*Registry, error) {
	return Parse(builtin)
}

// LoadFile parses a catalog from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from a YAML catalog.
func Parse(data []byte) (*Registry, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse persona catalog: %w", err)
	}
	return New(c.Default, c.Personas...)
}

// New builds a registry. defaultID names the persona used whenever a lookup or
// random selection cannot be satisfied; when empty the first persona is used.
func New(defaultID string, personas ...Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, errors.New("persona catalog is empty")
	}
	r := &Registry{byID: make(map[string]Persona, len(personas))}
	for i, p := range personas {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("persona %d: %w", i, err)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q", p.ID)
		}
		r.byID[p.ID] = p
		r.ids = append(r.ids, p.ID)
	}
	if defaultID == "" {
		defaultID = r.ids[0]
	}
	if _, ok := r.byID[defaultID]; !ok {
		return nil, fmt.Errorf("default persona %q not in catalog", defaultID)
	}
	r.defaultID = defaultID
	return r, nil
}

func validate(p Persona) error {
	switch {
	case p.ID == "":
		return errors.New("missing id")
	case p.Name == "":
		return fmt.Errorf("%s: missing name", p.ID)
	case p.Opener == "":
		return fmt.Errorf("%s: missing opener", p.ID)
	case len(p.Fallbacks) == 0:
		return fmt.Errorf("%s: needs at least one fallback line", p.ID)
	}
	for intent := range p.Templates {
		switch intent {
		case IntentThreat, IntentPayment, IntentCredential:
		default:
			return fmt.Errorf("%s: unknown intent %q", p.ID, intent)
		}
	}
	return nil
}

// Get returns the persona for id, or the default persona when id is unknown.
func (r *Registry) Get(id string) Persona {
	if p, ok := r.byID[id]; ok {
		return p
	}
	return r.byID[r.defaultID]
}

// Has reports whether id is in the catalog.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// DefaultID returns the designated default persona id.
func (r *Registry) DefaultID() string { return r.defaultID }

// IDs returns persona ids in catalog order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// All returns every persona in catalog order.
func (r *Registry) All() []Persona {
	out := make([]Persona, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of personas.
func (r *Registry) Len() int { return len(r.ids) }

// RandomID picks a persona id uniformly at random.
func (r *Registry) RandomID() string {
	if len(r.ids) == 0 {
		return r.defaultID
	}
	return r.ids[rand.IntN(len(r.ids))]
}
