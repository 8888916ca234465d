package chat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLabelsCode(t *testing.T) {
	f := NewFormatter(0)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "javascript",
			raw:  "function foo() { return 1; }",
			want: "javascript\nfunction foo() { return 1; }\n",
		},
		{
			name: "python",
			raw:  "def add(a, b):\n    return a + b",
			want: "python\ndef add(a, b):\n    return a + b\n",
		},
		{
			name: "sql is case insensitive",
			raw:  "select * from users;",
			want: "sql\nselect * from users;\n",
		},
		{
			name: "code without a known language",
			raw:  "x = 1",
			want: "\nx = 1\n",
		},
		{
			name: "prose is untouched",
			raw:  "Hello there, how can I help?",
			want: "Hello there, how can I help?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Format(tt.raw))
		})
	}
}

func TestLooksLikeCodeCountsIndentSpaces(t *testing.T) {
	assert.True(t, LooksLikeCode("steps\n    indented four spaces"))
	assert.False(t, LooksLikeCode("steps\n   three spaces"))
	assert.False(t, LooksLikeCode("steps\n\t\ttab indented"))
}

func TestFormatKeepsFencedReplies(t *testing.T) {
	f := NewFormatter(0)
	raw := "Here you go:\n```js\nconst a = 1;\n```"

	assert.Equal(t, raw, f.Format(raw))
	assert.False(t, LooksLikeCode(raw))
}

func TestDetectLanguageFirstRuleWins(t *testing.T) {
	f := NewFormatter(0)

	// Python source, but "import" is also a javascript keyword and that rule
	// is checked first.
	label, ok := f.DetectLanguage("import os\nprint(os.name)")
	require.True(t, ok)
	assert.Equal(t, "javascript", label)

	_, ok = f.DetectLanguage("nothing to see")
	assert.False(t, ok)
}

func TestWrapLineHardCutsLongTokens(t *testing.T) {
	line := strings.Repeat("a", 100)

	chunks := WrapLine(line, 80)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 80), chunks[0])
	assert.Equal(t, strings.Repeat("a", 20), chunks[1])
}

func TestWrapLinePreservesContent(t *testing.T) {
	line := strings.Repeat("lorem ipsum dolor sit amet ", 12) + strings.Repeat("x", 95) + " tail"

	chunks := WrapLine(line, 80)

	assert.Equal(t, line, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 80)
	}
}

func TestWrapLeavesShortLinesAlone(t *testing.T) {
	f := NewFormatter(20)
	text := "short line\nthis line is definitely longer than twenty\nend"

	out := f.Wrap(text)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "short line", lines[0])
	assert.Equal(t, "end", lines[len(lines)-1])
	for _, l := range lines {
		assert.LessOrEqual(t, utf8.RuneCountInString(l), 20)
	}
	assert.Equal(t, strings.ReplaceAll(text, "\n", ""), strings.ReplaceAll(out, "\n", ""))
}

func TestFormatNeverWrapsLabel(t *testing.T) {
	f := NewFormatter(10)

	out := f.Format("const value = 42;")

	lines := strings.Split(out, "\n")
	assert.Equal(t, "javascript", lines[0])
}
