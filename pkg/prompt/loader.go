package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/modelgate/modelgate/pkg/domain"
)

// templateFile is the YAML shape of one template file in the prompts directory.
type templateFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Body        string `yaml:"body"`
}

// LoadDir registers every template file (*.yaml, *.yml) in dir. Templates
// already present under the same name are updated in place; names that
// collide with built-ins are rejected per file, and loading continues.
// Returns the number of templates applied.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read prompts directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := r.loadFile(path); err != nil {
			r.logger.Warn("skipping template file", "path", path, "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

func (r *Registry) loadFile(path string) error {
	//nolint:gosec // Prompt directory is controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parse template file: %w", err)
	}
	if tf.Name == "" || tf.Body == "" {
		return fmt.Errorf("%w: template file requires name and body", domain.ErrValidation)
	}

	if existing, err := r.Get(tf.Name); err == nil {
		if existing.Builtin {
			return fmt.Errorf("%w: %q", domain.ErrProtectedTemplate, tf.Name)
		}
		return r.Update(tf.Name, tf.Body, tf.Description)
	}

	err = r.Register(tf.Name, tf.Body, tf.Description)
	if errors.Is(err, domain.ErrDuplicateTemplate) {
		// Raced with a concurrent register; treat as an update.
		return r.Update(tf.Name, tf.Body, tf.Description)
	}
	return err
}
