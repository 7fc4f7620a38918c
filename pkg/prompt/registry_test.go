package prompt

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/domain"
)

func TestRegistrySeedsBuiltins(t *testing.T) {
	r := NewRegistry(nil)

	for _, name := range []string{"company_analysis", "text_summary", "code_review", "general_question"} {
		tmpl, err := r.Get(name)
		require.NoError(t, err, "builtin %q must be seeded", name)
		assert.True(t, tmpl.Builtin)
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register("greeting", "Hello {name}!", "greets someone"))

	out, err := r.Resolve("greeting", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!", out)
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register("greeting", "Hello {name}!", ""))
	err := r.Register("greeting", "other body", "")
	require.ErrorIs(t, err, domain.ErrDuplicateTemplate)

	err = r.Register("text_summary", "shadow a builtin", "")
	require.ErrorIs(t, err, domain.ErrDuplicateTemplate)
}

func TestRegistryRegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry(nil)
	require.ErrorIs(t, r.Register("", "body", ""), domain.ErrValidation)
}

func TestRegistryUpdate(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register("greeting", "Hello {name}!", ""))
	require.NoError(t, r.Update("greeting", "Hi {name}.", "updated"))

	out, err := r.Resolve("greeting", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada.", out)

	require.ErrorIs(t, r.Update("absent", "body", ""), domain.ErrTemplateNotFound)
}

func TestRegistryUpdatePreservesBuiltinFlag(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Update("text_summary", "Summarize: {text}", ""))
	tmpl, err := r.Get("text_summary")
	require.NoError(t, err)
	assert.True(t, tmpl.Builtin)

	require.ErrorIs(t, r.Remove("text_summary"), domain.ErrProtectedTemplate)
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register("greeting", "Hello {name}!", ""))
	require.NoError(t, r.Remove("greeting"))

	_, err := r.Get("greeting")
	require.ErrorIs(t, err, domain.ErrTemplateNotFound)

	require.ErrorIs(t, r.Remove("greeting"), domain.ErrTemplateNotFound)
	require.ErrorIs(t, r.Remove("code_review"), domain.ErrProtectedTemplate)
}

func TestRegistryResolveMissingTemplate(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Resolve("absent", nil)
	require.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestRegistryResolveBuiltin(t *testing.T) {
	r := NewRegistry(nil)

	out, err := r.Resolve("general_question", map[string]string{
		"question": "What is a monad?",
		"context":  "Audience of Go programmers.",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "What is a monad?")
	assert.Contains(t, out, "Audience of Go programmers.")
	assert.NotContains(t, out, "{question}")
}

func TestResolveLiteral(t *testing.T) {
	t.Run("passthrough without placeholders", func(t *testing.T) {
		out, err := ResolveLiteral("just a question", nil)
		require.NoError(t, err)
		assert.Equal(t, "just a question", out)
	})

	t.Run("substitutes variables", func(t *testing.T) {
		out, err := ResolveLiteral("ask about {topic}", map[string]string{"topic": "Go"})
		require.NoError(t, err)
		assert.Equal(t, "ask about Go", out)
	})

	t.Run("missing variables fail", func(t *testing.T) {
		_, err := ResolveLiteral("ask about {topic}", nil)
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("aaa_first", "{x}", "sorts before builtins"))

	infos := r.List()
	require.Len(t, infos, 5)
	assert.Equal(t, "aaa_first", infos[0].Name)
	assert.False(t, infos[0].Builtin)
	assert.Equal(t, []string{"x"}, infos[0].Placeholders)
}

func TestRegistryDescribe(t *testing.T) {
	r := NewRegistry(nil)

	info, err := r.Describe("code_review")
	require.NoError(t, err)
	assert.True(t, info.Builtin)
	assert.Equal(t, []string{"code", "language"}, info.Placeholders)

	_, err = r.Describe("absent")
	require.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("worker_%d", n)
			if err := r.Register(name, "body {v}", ""); err != nil {
				t.Errorf("register %s: %v", name, err)
				return
			}
			for j := 0; j < 50; j++ {
				if _, err := r.Resolve(name, map[string]string{"v": "x"}); err != nil {
					t.Errorf("resolve %s: %v", name, err)
					return
				}
				r.List()
			}
			if err := r.Remove(name); err != nil {
				t.Errorf("remove %s: %v", name, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.List(), 4, "only builtins remain")
}
