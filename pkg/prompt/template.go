// Package prompt implements the gateway's template registry and the strict
// variable-substitution engine used to build prompts.
package prompt

import (
	"regexp"
	"sort"

	"github.com/modelgate/modelgate/pkg/domain"
)

// placeholderPattern matches a named slot: a word enclosed in a single pair
// of braces. No nesting, no expressions.
var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Template is one named prompt body. Templates are immutable once stored;
// updates replace the whole entry.
type Template struct {
	Name        string
	Body        string
	Description string
	Builtin     bool
}

// Placeholders returns the sorted set of variable names the body references.
func (t *Template) Placeholders() []string {
	return extractPlaceholders(t.Body)
}

func extractPlaceholders(body string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	sort.Strings(names)
	return names
}

// substitute replaces every placeholder in body with its value. Every
// referenced name must be supplied: absence is an error, never an empty
// string. Replacement is a single literal pass; values are not re-scanned.
func substitute(templateName, body string, variables map[string]string) (string, error) {
	var missing []string
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if _, ok := variables[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &domain.MissingVariableError{Template: templateName, Names: missing}
	}

	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := match[1 : len(match)-1]
		return variables[name]
	}), nil
}
