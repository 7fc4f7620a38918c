package prompt

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/modelgate/modelgate/pkg/domain"
)

// Registry is the shared template store. Built-in templates are seeded at
// construction and cannot be removed; user templates are mutated at runtime.
// Reads may run concurrently with mutation: entries are replaced wholesale
// under the lock, so a resolve sees either the old or the new body, never a
// torn one.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	logger    *slog.Logger
}

// NewRegistry creates a registry seeded with the built-in templates.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		templates: make(map[string]*Template, len(builtinTemplates)),
		logger:    logger,
	}
	for _, t := range builtinTemplates {
		seeded := t
		seeded.Builtin = true
		r.templates[t.Name] = &seeded
	}
	return r
}

// Register adds a user template. The name must be unused.
func (r *Registry) Register(name, body, description string) error {
	if name == "" {
		return fmt.Errorf("%w: template name must not be empty", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[name]; exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateTemplate, name)
	}

	t := &Template{Name: name, Body: body, Description: description}
	if len(t.Placeholders()) == 0 {
		r.logger.Warn("template has no placeholders", "template", name)
	}
	r.templates[name] = t
	return nil
}

// Update replaces the body and description of an existing template.
func (r *Registry) Update(name, body, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrTemplateNotFound, name)
	}

	r.templates[name] = &Template{
		Name:        name,
		Body:        body,
		Description: description,
		Builtin:     existing.Builtin,
	}
	return nil
}

// Remove deletes a user template. Built-in templates are protected.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrTemplateNotFound, name)
	}
	if existing.Builtin {
		return fmt.Errorf("%w: %q", domain.ErrProtectedTemplate, name)
	}

	delete(r.templates, name)
	return nil
}

// Get returns the template for the name.
func (r *Registry) Get(name string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrTemplateNotFound, name)
	}
	return t, nil
}

// Resolve substitutes variables into the named template. Every placeholder
// the body references must be supplied.
func (r *Registry) Resolve(name string, variables map[string]string) (string, error) {
	t, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return substitute(name, t.Body, variables)
}

// ResolveLiteral applies the same substitution and validation rules to
// caller-supplied text. Text without placeholders passes through unchanged.
func ResolveLiteral(text string, variables map[string]string) (string, error) {
	return substitute("", text, variables)
}

// Info describes a template without exposing its mutable entry.
type Info struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Builtin      bool     `json:"builtin"`
	Placeholders []string `json:"placeholders"`
}

// List returns descriptions of all templates, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.templates))
	for _, t := range r.templates {
		infos = append(infos, Info{
			Name:         t.Name,
			Description:  t.Description,
			Builtin:      t.Builtin,
			Placeholders: t.Placeholders(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Describe returns the info for one template.
func (r *Registry) Describe(name string) (Info, error) {
	t, err := r.Get(name)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:         t.Name,
		Description:  t.Description,
		Builtin:      t.Builtin,
		Placeholders: t.Placeholders(),
	}, nil
}
