package binder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CR94168/learn-claude-code-cli/internal/template"
)

func mustParse(t *testing.T, name, content string) *template.Template {
	t.Helper()
	tmpl, err := template.Parse(name+".md", []byte(content))
	require.NoError(t, err)
	tmpl.Name = name
	return tmpl
}

func TestBindSingleSlot(t *testing.T) {
	tmpl := mustParse(t, "add-feature", "---\nargument-hint: [feature-description]\n---\nImplement: {{args}}.\nDone.")

	inst, err := Bind(tmpl, Request{Command: "add-feature", Input: "add dark mode toggle"})
	require.NoError(t, err)

	assert.Equal(t, "Implement: add dark mode toggle.\nDone.", inst.Text)
	assert.Equal(t, "add dark mode toggle", inst.Input)
	assert.Nil(t, inst.Args)
}

func TestBindAllArgsIsVerbatim(t *testing.T) {
	tmpl := mustParse(t, "echo", "before<{{args}}>after")

	inputs := []string{
		"",
		"  padded  ",
		`it's "quoted" $HOME $(rm -rf /) | tee x`,
		"multi\nline\r\ninput",
		"{{args}} {{args[0]}}",
		"unicode: héllo ✓",
	}
	for _, in := range inputs {
		inst, err := Bind(tmpl, Request{Input: in})
		require.NoError(t, err, in)
		assert.Equal(t, "before<"+in+">after", inst.Text)
		if in != "" {
			assert.Equal(t, len("before<"), strings.Index(inst.Text, in))
		}
	}
}

func TestBindPositional(t *testing.T) {
	tmpl := mustParse(t, "create-project", "---\nargument-hint: [framework] [project-name]\n---\nCreate {{args[1]}} with {{ args[0] }} ({{args}})")

	inst, err := Bind(tmpl, Request{Input: `dotnet "My App"`})
	require.NoError(t, err)
	assert.Equal(t, `Create My App with dotnet (dotnet "My App")`, inst.Text)
	assert.Equal(t, []string{"dotnet", "My App"}, inst.Args)
}

func TestBindPositionalFromList(t *testing.T) {
	tmpl := mustParse(t, "create-project", "{{args[0]}}/{{args[1]}}")

	inst, err := Bind(tmpl, Request{Args: []string{"vue", "shop front", "extra"}})
	require.NoError(t, err)
	assert.Equal(t, "vue/shop front", inst.Text)
	assert.Equal(t, "vue shop front extra", inst.Input)
}

func TestBindMissingSecondArgument(t *testing.T) {
	tmpl := mustParse(t, "create-project", "---\nargument-hint: [framework] [project-name]\n---\n{{args[0]}} {{args[1]}}")

	_, err := Bind(tmpl, Request{Command: "create-project", Input: "ASP.NET"})
	require.Error(t, err)

	var ae *ArityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Missing)
	assert.Equal(t, "project-name", ae.Slot)
	assert.Equal(t, 1, ae.Have)
	assert.Equal(t, 2, ae.Need)
	assert.True(t, IsArityError(err))
}

func TestBindArityBoundary(t *testing.T) {
	tmpl := mustParse(t, "x", "{{args[0]}}{{args[3]}}")

	for n := 0; n <= 5; n++ {
		args := make([]string, n)
		for i := range args {
			args[i] = "t"
		}
		_, err := Bind(tmpl, Request{Args: args})
		if n < 4 {
			var ae *ArityError
			require.ErrorAs(t, err, &ae, "n=%d", n)
			assert.Equal(t, n, ae.Missing)
		} else {
			assert.NoError(t, err, "n=%d", n)
		}
	}
}

func TestBindOutOfRangeIndex(t *testing.T) {
	tmpl := &template.Template{Name: "huge", Body: "go {{args[9223372036854775807]}}"}

	var inst *Instruction
	var err error
	require.NotPanics(t, func() {
		inst, err = Bind(tmpl, Request{Input: "one"})
	})
	assert.Nil(t, inst)
	var ie *template.IndexError
	require.ErrorAs(t, err, &ie)
	assert.False(t, IsArityError(err))
}

func TestBindCountsPlaceholdersInBody(t *testing.T) {
	// Usage left empty, as for a template built by hand.
	tmpl := &template.Template{Name: "pair", Body: "{{args[0]}} and {{args[2]}}"}

	var err error
	require.NotPanics(t, func() {
		_, err = Bind(tmpl, Request{Input: "one"})
	})
	var ae *ArityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Have)
	assert.Equal(t, 3, ae.Need)
}

func TestBindEmptyInputForPositional(t *testing.T) {
	tmpl := mustParse(t, "x", "{{args[0]}}")

	_, err := Bind(tmpl, Request{Input: "   "})
	var ae *ArityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 0, ae.Missing)
	assert.Equal(t, "arg0", ae.Slot)
}

func TestBindEscapedPlaceholders(t *testing.T) {
	tmpl := mustParse(t, "doc", `Write \{{args}} and \{{args[2]}} literally, then {{args}}`)

	inst, err := Bind(tmpl, Request{Input: "value"})
	require.NoError(t, err)
	assert.Equal(t, "Write {{args}} and {{args[2]}} literally, then value", inst.Text)
}

func TestBindDoesNotRescanValues(t *testing.T) {
	tmpl := mustParse(t, "x", "{{args[0]}} {{args[1]}}")

	inst, err := Bind(tmpl, Request{Args: []string{"{{args[1]}}", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "{{args[1]}} b", inst.Text)
}

func TestBindUnrelatedBracesUntouched(t *testing.T) {
	tmpl := mustParse(t, "x", "{{ .Values.image }} {{project}} {{args}}")

	inst, err := Bind(tmpl, Request{Input: "v"})
	require.NoError(t, err)
	assert.Equal(t, "{{ .Values.image }} {{project}} v", inst.Text)
}

func TestBindScope(t *testing.T) {
	tmpl := mustParse(t, "scaffold", "---\nscope:\n  - \"apps/{{args[1]}}/\"\n  - shared/\nexclude: [\"**/*.lock\"]\n---\nScaffold {{args[0]}}")

	inst, err := Bind(tmpl, Request{Input: "vue shop"})
	require.NoError(t, err)
	assert.Equal(t, []string{"apps/shop/", "shared/"}, inst.Scope)
	assert.Equal(t, []string{"**/*.lock"}, inst.Exclude)
	assert.Equal(t, "Scaffold vue", inst.Text)
}

func TestBindScopeCountsTowardArity(t *testing.T) {
	tmpl := mustParse(t, "scaffold", "---\nscope: [\"apps/{{args[1]}}/\"]\n---\nScaffold {{args[0]}}")

	_, err := Bind(tmpl, Request{Input: "vue"})
	var ae *ArityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Missing)
}

func TestBindTokenizeErrorOnlyWhenPositional(t *testing.T) {
	input := "fix it | tee out"

	all := mustParse(t, "all", "{{args}}")
	inst, err := Bind(all, Request{Input: input})
	require.NoError(t, err)
	assert.Equal(t, input, inst.Text)

	pos := mustParse(t, "pos", "{{args[0]}}")
	_, err = Bind(pos, Request{Input: input})
	var te *TokenizeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, input, te.Input)
}

func TestBindDoesNotMutateTemplate(t *testing.T) {
	tmpl := mustParse(t, "x", "---\nscope: [\"{{args[0]}}/\"]\n---\n{{args[0]}}")
	before := *tmpl
	beforeScope := append([]string(nil), tmpl.Scope...)

	_, err := Bind(tmpl, Request{Input: "a"})
	require.NoError(t, err)
	assert.Equal(t, before.Body, tmpl.Body)
	assert.Equal(t, beforeScope, tmpl.Scope)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"   ", nil},
		{"ASP.NET", []string{"ASP.NET"}},
		{"vue  my-app", []string{"vue", "my-app"}},
		{`"My App" 'single $HOME'`, []string{"My App", "single $HOME"}},
		{`a\ b c`, []string{"a b", "c"}},
		{`"say \"hi\""`, []string{`say "hi"`}},
		{`$HOME/src`, []string{"$HOME/src"}},
		{`"${USER}"`, []string{"${USER}"}},
		{`name=value rest`, []string{"name=value", "rest"}},
		{`*.go`, []string{"*.go"}},
		{`~/x`, []string{"~/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Tokenize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenizeRejects(t *testing.T) {
	inputs := []string{
		"a | b",
		"a > out",
		"a; b",
		"a && b",
		"a &",
		"$(whoami)",
		"`whoami`",
		`"$(whoami)"`,
		"it's",
		"fix #12",
		"(sub shell)",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Tokenize(in)
			var te *TokenizeError
			require.ErrorAs(t, err, &te)
		})
	}
}
