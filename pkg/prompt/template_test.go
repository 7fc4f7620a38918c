package prompt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/modelgate/modelgate/pkg/domain"
)

func TestExtractPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"none", "no placeholders here", []string{}},
		{"single", "hello {name}", []string{"name"}},
		{"sorted unique", "{b} {a} {b} {c}", []string{"a", "b", "c"}},
		{"underscores and digits", "{var_1} {var_2}", []string{"var_1", "var_2"}},
		{"unclosed brace ignored", "{open and {name}", []string{"name"}},
		{"empty braces ignored", "{} {name}", []string{"name"}},
		{"nested keeps inner word", "{{name}}", []string{"name"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tmpl := Template{Body: tc.body}
			assert.Equal(t, tc.want, tmpl.Placeholders())
		})
	}
}

func TestSubstitute(t *testing.T) {
	out, err := substitute("greet", "Hello {name}, welcome to {place}!", map[string]string{
		"name":  "Ada",
		"place": "the gateway",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, welcome to the gateway!", out)
}

func TestSubstituteReportsAllMissingNames(t *testing.T) {
	_, err := substitute("greet", "{z} and {a} and {m}", map[string]string{"m": "x"})
	require.Error(t, err)

	var missing *domain.MissingVariableError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "greet", missing.Template)
	assert.Equal(t, []string{"a", "z"}, missing.Names, "missing names are sorted and deduplicated")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSubstituteEmptyValueIsNotMissing(t *testing.T) {
	out, err := substitute("t", "[{v}]", map[string]string{"v": ""})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestSubstituteDoesNotRescanValues(t *testing.T) {
	out, err := substitute("t", "{a}", map[string]string{"a": "{b}"})
	require.NoError(t, err)
	assert.Equal(t, "{b}", out, "substituted values must be treated as literals")
}

func TestSubstituteExtraVariablesIgnored(t *testing.T) {
	out, err := substitute("t", "plain text", map[string]string{"unused": "x"})
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestSubstituteSupplyingAllPlaceholdersAlwaysSucceeds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(
			rapid.StringMatching(`[a-z][a-z0-9_]{0,8}`), 1, 5, rapid.ID[string],
		).Draw(t, "names")

		body := ""
		variables := make(map[string]string, len(names))
		for _, name := range names {
			body += "{" + name + "} "
			variables[name] = rapid.StringMatching(`[ -z]{0,12}`).Draw(t, "value_"+name)
		}

		out, err := substitute("t", body, variables)
		if err != nil {
			t.Fatalf("substitute failed: %v", err)
		}
		// Values cannot contain braces, so no placeholder may survive.
		if placeholderPattern.MatchString(out) {
			t.Fatalf("unexpected placeholder residue in %q", out)
		}
	})
}
