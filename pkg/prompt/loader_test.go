package prompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplateFile(t *testing.T, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
}

func TestLoadDirRegistersTemplates(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "greeting.yaml", `
name: greeting
description: greets someone
body: "Hello {name}!"
`)
	writeTemplateFile(t, dir, "farewell.yml", `
name: farewell
body: "Goodbye {name}."
`)

	r := NewRegistry(nil)
	loaded, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	out, err := r.Resolve("greeting", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!", out)

	info, err := r.Describe("farewell")
	require.NoError(t, err)
	assert.False(t, info.Builtin)
}

func TestLoadDirUpdatesExistingUserTemplates(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "greeting.yaml", `
name: greeting
body: "Hi {name}."
`)

	r := NewRegistry(nil)
	require.NoError(t, r.Register("greeting", "Hello {name}!", ""))

	loaded, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	out, err := r.Resolve("greeting", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada.", out)
}

func TestLoadDirSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "good.yaml", `
name: good
body: "{x}"
`)
	writeTemplateFile(t, dir, "broken.yaml", "::: not yaml :::")
	writeTemplateFile(t, dir, "incomplete.yaml", "name: no_body\n")
	writeTemplateFile(t, dir, "builtin.yaml", `
name: text_summary
body: "shadowing a builtin"
`)
	writeTemplateFile(t, dir, "notes.txt", "ignored, wrong extension")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	r := NewRegistry(nil)
	loaded, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded, "only the valid non-builtin file loads")

	_, err = r.Get("good")
	require.NoError(t, err)

	tmpl, err := r.Get("text_summary")
	require.NoError(t, err)
	assert.True(t, tmpl.Builtin)
	assert.NotEqual(t, "shadowing a builtin", tmpl.Body)
}

func TestLoadDirMissingDirectory(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(r, dir, 10*time.Millisecond, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Give the watcher time to install before writing.
	time.Sleep(50 * time.Millisecond)
	writeTemplateFile(t, dir, "live.yaml", `
name: live
body: "{x}"
`)

	require.Eventually(t, func() bool {
		_, err := r.Get("live")
		return err == nil
	}, 3*time.Second, 20*time.Millisecond, "watcher should load the new template")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}
