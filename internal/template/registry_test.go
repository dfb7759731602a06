package template

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "add-feature.md", "---\ndescription: Add a feature\nargument-hint: [feature-description]\n---\nPlan {{args}}\n")
	writeTemplate(t, dir, "git/commit.md", "Commit with message {{args[0]}}")
	writeTemplate(t, dir, "notes.txt", "not a template")

	reg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	tmpl, err := reg.Lookup("add-feature")
	require.NoError(t, err)
	assert.Equal(t, "Add a feature", tmpl.Description)
	assert.Equal(t, "Plan {{args}}\n", tmpl.Body)
	assert.Equal(t, filepath.Join(dir, "add-feature.md"), tmpl.Path)

	nested, err := reg.Lookup("git:commit")
	require.NoError(t, err)
	assert.Equal(t, "Commit with message {{args[0]}}", nested.Body)

	names := []string{}
	for _, tmpl := range reg.List() {
		names = append(names, tmpl.Name)
	}
	assert.Equal(t, []string{"add-feature", "git:commit"}, names)
}

func TestLoadRoundTripBody(t *testing.T) {
	dir := t.TempDir()
	bodies := map[string]string{
		"a.md": "plain body without front-matter\n",
		"b.md": "\n\n  leading blank lines {{args}}\n",
		"c.md": "",
	}
	writeTemplate(t, dir, "a.md", bodies["a.md"])
	writeTemplate(t, dir, "b.md", "---\ndescription: b\n---\n"+bodies["b.md"])
	writeTemplate(t, dir, "c.md", "---\ndescription: c\n---\n")

	reg, err := Load(dir)
	require.NoError(t, err)

	for file, body := range bodies {
		tmpl, err := reg.Lookup(file[:1])
		require.NoError(t, err)
		assert.Equal(t, body, tmpl.Body, file)
	}
}

func TestLoadFrontmatterName(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "whatever.md", "---\nname: scaffold\n---\nbody")

	reg, err := Load(dir)
	require.NoError(t, err)

	_, err = reg.Lookup("scaffold")
	assert.NoError(t, err)
	_, err = reg.Lookup("whatever")
	assert.True(t, IsNotFound(err))
}

func TestLoadKeepsGoodTemplatesOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "bad.md", "---\ndescription: never closed\n")
	writeTemplate(t, dir, "good.md", "fine")

	reg, err := Load(dir)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Len(t, loadErr.Errors, 1)
	assert.Equal(t, filepath.Join(dir, "bad.md"), loadErr.Errors[0].Path)

	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
	assert.True(t, IsParseError(err))

	_, err = reg.Lookup("good")
	assert.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestLoadRejectsHugePlaceholderIndex(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "huge.md", "---\ndescription: huge\n---\ngo {{args[20000000]}}\n")
	writeTemplate(t, dir, "good.md", "fine {{args[0]}}")

	reg, err := Load(dir)
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	assert.True(t, ie.TooLarge)

	assert.Equal(t, 1, reg.Len())
	_, err = reg.Lookup("huge")
	assert.True(t, IsNotFound(err))
}

func TestLoadDuplicateNames(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeTemplate(t, first, "deploy.md", "first")
	writeTemplate(t, first, "other.md", "---\nname: deploy\n---\nsame dir duplicate")
	writeTemplate(t, second, "deploy.md", "second")

	reg, err := Load(first, second)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Len(t, loadErr.Errors, 2)
	for _, pe := range loadErr.Errors {
		assert.Contains(t, pe.Reason, "duplicate command name")
	}

	tmpl, err := reg.Lookup("deploy")
	require.NoError(t, err)
	assert.Equal(t, "first", tmpl.Body)
}

func TestLoadMissingDirectory(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestLoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "a.md", "---\ndescription: A\n---\n{{args}}")

	before, err := os.ReadFile(filepath.Join(dir, "a.md"))
	require.NoError(t, err)

	r1, err := Load(dir)
	require.NoError(t, err)
	r2, err := Load(dir)
	require.NoError(t, err)

	t1, _ := r1.Lookup("a")
	t2, _ := r2.Lookup("a")
	assert.Equal(t, t1, t2)

	after, err := os.ReadFile(filepath.Join(dir, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLookupSuggestions(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "add-feature.md", "x")
	writeTemplate(t, dir, "add-test.md", "x")
	writeTemplate(t, dir, "refactor.md", "x")

	reg, err := Load(dir)
	require.NoError(t, err)

	_, err = reg.Lookup("add-featur")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.NotEmpty(t, nf.Suggestions)
	assert.Equal(t, "add-feature", nf.Suggestions[0])
	assert.Contains(t, err.Error(), "did you mean")

	_, err = reg.Lookup("zzzzzzzzzzzz")
	require.ErrorAs(t, err, &nf)
	assert.Empty(t, nf.Suggestions)
}

func TestSourceReload(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "one.md", "1")

	src, err := NewSource(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Registry().Len())

	var notified int
	src.OnReload(func(reg *Registry, err error) {
		notified = reg.Len()
	})

	writeTemplate(t, dir, "two.md", "2")
	reg, err := src.Reload()
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 2, notified)

	_, err = src.Lookup("two")
	assert.NoError(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "one.md", "1")

	src, err := NewSource(dir)
	require.NoError(t, err)

	w, err := NewWatcher(src, 20*time.Millisecond)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	writeTemplate(t, dir, "two.md", "2")

	assert.Eventually(t, func() bool {
		_, err := src.Lookup("two")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}
