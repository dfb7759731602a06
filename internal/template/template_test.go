package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrontmatter(t *testing.T) {
	content := "---\n" +
		"description: Add a feature to the project\n" +
		"argument-hint: [feature-description]\n" +
		"scope:\n" +
		"  - src/\n" +
		"  - tests/\n" +
		"allowed-tools: Bash(git add:*), Read\n" +
		"model: claude-sonnet-4\n" +
		"---\n" +
		"Implement {{args}}.\n"

	tmpl, err := Parse("add-feature.md", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "Add a feature to the project", tmpl.Description)
	assert.Equal(t, "[feature-description]", tmpl.ArgumentHint)
	assert.Equal(t, []string{"src/", "tests/"}, tmpl.Scope)
	assert.Equal(t, []string{"Bash(git add:*)", "Read"}, tmpl.AllowedTools)
	assert.Equal(t, "claude-sonnet-4", tmpl.Model)
	assert.Equal(t, "Implement {{args}}.\n", tmpl.Body)
	assert.True(t, tmpl.Usage.All)
	assert.False(t, tmpl.Usage.Positional())
	require.Len(t, tmpl.Slots, 1)
	assert.Equal(t, "feature-description", tmpl.Slots[0].Name)
}

func TestParseBodyIsByteIdentical(t *testing.T) {
	body := "# Title\r\n\n  indented {{args}}  \n\ttrailing\n\n\n"
	content := "---\r\ndescription: x\r\n---\r\n" + body

	tmpl, err := Parse("x.md", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, body, tmpl.Body)
}

func TestParseWithoutFrontmatter(t *testing.T) {
	content := "# Review the code\n\nReview {{args}} carefully.\n"

	tmpl, err := Parse("review.md", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, content, tmpl.Body)
	assert.Equal(t, "Review the code", tmpl.Description)
	assert.Empty(t, tmpl.ArgumentHint)
	assert.Empty(t, tmpl.Name)
}

func TestParseQuotedHint(t *testing.T) {
	content := "---\nargument-hint: \"[framework] [project-name]\"\n---\n{{args[0]}} {{args[1]}}"

	tmpl, err := Parse("create-project.md", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "[framework] [project-name]", tmpl.ArgumentHint)
	assert.Equal(t, 1, tmpl.Usage.MaxIndex)
	require.Len(t, tmpl.Slots, 2)
	assert.Equal(t, Slot{Index: 0, Name: "framework"}, tmpl.Slots[0])
	assert.Equal(t, Slot{Index: 1, Name: "project-name"}, tmpl.Slots[1])
}

func TestParseUnquotedMultiGroupHint(t *testing.T) {
	// Not valid YAML on its own; the hint line is read verbatim.
	content := "---\ndescription: Create project\nargument-hint: [framework: vue|dotnet] [project-name]\n---\n{{args[0]}}/{{args[1]}}"

	tmpl, err := Parse("create-project.md", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "[framework: vue|dotnet] [project-name]", tmpl.ArgumentHint)
	assert.Equal(t, "Create project", tmpl.Description)
	require.Len(t, tmpl.Slots, 2)
	assert.Equal(t, "framework", tmpl.Slots[0].Name)
	assert.Equal(t, "vue|dotnet", tmpl.Slots[0].Hint)
}

func TestParseSynthesizedSlots(t *testing.T) {
	content := "---\nargument-hint: [first]\n---\n{{args[0]}} {{args[2]}}"

	tmpl, err := Parse("x.md", []byte(content))
	require.NoError(t, err)

	require.Len(t, tmpl.Slots, 3)
	assert.Equal(t, "first", tmpl.SlotName(0))
	assert.Equal(t, "arg1", tmpl.SlotName(1))
	assert.Equal(t, "arg2", tmpl.SlotName(2))
	assert.Equal(t, "arg7", tmpl.SlotName(7))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{
			name:    "unterminated front-matter",
			content: "---\ndescription: never closed\nbody",
			reason:  "unterminated front-matter",
		},
		{
			name:    "front-matter only opening line",
			content: "---",
			reason:  "unterminated front-matter",
		},
		{
			name:    "invalid yaml",
			content: "---\ndescription: [unclosed\n---\nbody",
			reason:  "invalid front-matter",
		},
		{
			name:    "wrong type for known key",
			content: "---\nname:\n  nested: map\n---\nbody",
			reason:  "invalid front-matter",
		},
		{
			name:    "bad placeholder index",
			content: "---\ndescription: x\n---\nline one\n{{args[first]}}",
			reason:  "invalid placeholder index",
		},
		{
			name:    "placeholder index above limit",
			content: "go {{args[256]}}",
			reason:  "must not exceed 255",
		},
		{
			name:    "placeholder index overflows int",
			content: "go {{args[9223372036854775808]}}",
			reason:  "invalid placeholder index",
		},
		{
			name:    "bad placeholder in scope",
			content: "---\nscope: [\"{{args[-1]}}/\"]\n---\nbody",
			reason:  "scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.md", []byte(tt.content))
			require.Error(t, err)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "bad.md", pe.Path)
			assert.Contains(t, pe.Reason, tt.reason)
		})
	}
}

func TestParseErrorLineOfBadPlaceholder(t *testing.T) {
	_, err := Parse("bad.md", []byte("---\ndescription: x\n---\nline one\n{{args[first]}}"))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 5, pe.Line)
}

func TestScanPlaceholders(t *testing.T) {
	text := `a {{args}} b {{ args[1] }} c \{{args[0]}} d {{project-name}} e {{args[ 3 ]}}`

	ps, err := ScanPlaceholders(text)
	require.NoError(t, err)
	require.Len(t, ps, 4)

	assert.Equal(t, AllArgs, ps[0].Index)
	assert.Equal(t, 1, ps[1].Index)
	assert.True(t, ps[2].Escaped)
	assert.Equal(t, "{{args[0]}}", ps[2].Literal(text))
	assert.Equal(t, 3, ps[3].Index)

	u := usageOf(ps)
	assert.True(t, u.All)
	assert.Equal(t, 3, u.MaxIndex)
	assert.Equal(t, 4, u.Arity())
}

func TestParseIndexLimit(t *testing.T) {
	tmpl, err := Parse("top.md", []byte("last {{args[255]}}"))
	require.NoError(t, err)
	assert.Equal(t, 256, tmpl.Usage.Arity())
	assert.Len(t, tmpl.Slots, 256)

	for _, body := range []string{"go {{args[20000000]}}", "go {{args[9223372036854775807]}}"} {
		_, err := Parse("huge.md", []byte(body))
		var ie *IndexError
		require.ErrorAs(t, err, &ie, body)
		assert.True(t, ie.TooLarge, body)
	}

	// An escaped placeholder is literal text whatever its index.
	tmpl, err = Parse("lit.md", []byte(`\{{args[20000000]}}`))
	require.NoError(t, err)
	assert.False(t, tmpl.Usage.Positional())
}

func TestEscapedPlaceholderDoesNotCount(t *testing.T) {
	tmpl, err := Parse("x.md", []byte(`Use \{{args[5]}} literally`))
	require.NoError(t, err)
	assert.False(t, tmpl.Usage.Positional())
	assert.Empty(t, tmpl.Slots)
}
