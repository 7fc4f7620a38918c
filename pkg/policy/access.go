// Package policy evaluates optional Rego access rules for gateway requests.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/modelgate/modelgate/pkg/domain"
)

const defaultEntrypoint = "modelgate/allow"

// Input carries the request attributes a policy can rule on.
type Input struct {
	Subject string
	Model   string
	Path    string
}

// Gate evaluates compiled Rego modules against request inputs. A nil *Gate
// permits everything, so callers can hold one unconditionally.
type Gate struct {
	prepared rego.PreparedEvalQuery
}

// NewGate compiles the supplied Rego modules against the entrypoint. It
// returns (nil, nil) when no modules are configured, which disables the gate.
func NewGate(ctx context.Context, entrypoint string, modules map[string]string) (*Gate, error) {
	if len(modules) == 0 {
		return nil, nil
	}

	entry := strings.TrimSpace(entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}
	query := "data." + strings.ReplaceAll(entry, "/", ".")

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := make([]func(*rego.Rego), 0, len(modules)+1)
	opts = append(opts, rego.Query(query))
	for _, name := range names {
		module, err := ast.ParseModuleWithOpts(name, modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		opts = append(opts, rego.ParsedModule(module))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}

	return &Gate{prepared: prepared}, nil
}

// Authorize evaluates the access rule for one request. It returns nil on
// allow and ErrAuthorizationDenied otherwise. Undefined decisions allow,
// matching the behavior of a gateway with no policy configured.
func (g *Gate) Authorize(ctx context.Context, input Input) error {
	if g == nil {
		return nil
	}

	payload := map[string]any{
		"subject": input.Subject,
		"model":   input.Model,
		"path":    input.Path,
	}

	results, err := g.prepared.Eval(ctx, rego.EvalInput(payload))
	if err != nil {
		return fmt.Errorf("policy evaluation: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return fmt.Errorf("policy evaluation: decision must be boolean, got %T", results[0].Expressions[0].Value)
	}
	if !allowed {
		return fmt.Errorf("%w: subject %q may not use model %q", domain.ErrAuthorizationDenied, input.Subject, input.Model)
	}
	return nil
}
