package chat

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultLineWidth is the column limit for reply lines.
const DefaultLineWidth = 80

var (
	fencePattern    = regexp.MustCompile("(?s)```.*?```")
	codeLikePattern = regexp.MustCompile(`(?m)[{}();=]|^ {4,}`)
)

// LanguageRule labels a reply when Pattern matches it.
type LanguageRule struct {
	Label   string
	Pattern *regexp.Regexp
}

// DefaultLanguageRules returns the built-in rules. Order matters: the first
// matching rule wins, even if a later one would fit better.
func DefaultLanguageRules() []LanguageRule {
	return []LanguageRule{
		{Label: "javascript", Pattern: regexp.MustCompile(`(const|let|var|function|class|import|console\.log)`)},
		{Label: "html", Pattern: regexp.MustCompile(`(<!DOCTYPE html|<html|<head|<body)`)},
		{Label: "python", Pattern: regexp.MustCompile(`(def |print\(|import |class )`)},
		{Label: "sql", Pattern: regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE|FROM|WHERE)`)},
	}
}

// Formatter post-processes raw model replies for the client.
type Formatter struct {
	rules []LanguageRule
	width int
}

// NewFormatter uses DefaultLanguageRules when no rules are given and
// DefaultLineWidth when width is not positive.
func NewFormatter(width int, rules ...LanguageRule) *Formatter {
	if width <= 0 {
		width = DefaultLineWidth
	}
	if len(rules) == 0 {
		rules = DefaultLanguageRules()
	}
	return &Formatter{rules: rules, width: width}
}

// Format labels code-like replies and wraps long lines. Replies that already
// contain a fenced block keep their fencing as is. Only reply content is
// wrapped; the injected label line never is.
func (f *Formatter) Format(raw string) string {
	wrapped := f.Wrap(raw)
	if !LooksLikeCode(raw) {
		return wrapped
	}
	if label, ok := f.DetectLanguage(raw); ok {
		return label + "\n" + wrapped + "\n"
	}
	return "\n" + wrapped + "\n"
}

// LooksLikeCode reports whether the reply should be labelled: it has no
// fenced block yet and contains code punctuation or a 4-space indent.
func LooksLikeCode(text string) bool {
	if fencePattern.MatchString(text) {
		return false
	}
	return codeLikePattern.MatchString(text)
}

// DetectLanguage returns the label of the first matching rule.
func (f *Formatter) DetectLanguage(text string) (string, bool) {
	for _, rule := range f.rules {
		if rule.Pattern != nil && rule.Pattern.MatchString(text) {
			return rule.Label, true
		}
	}
	return "", false
}

// Wrap rewraps every line longer than the formatter width.
func (f *Formatter) Wrap(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if utf8.RuneCountInString(line) > f.width {
			lines[i] = strings.Join(WrapLine(line, f.width), "\n")
		}
	}
	return strings.Join(lines, "\n")
}

// WrapLine splits line into chunks of at most width runes. Breaks happen
// after the last whitespace that fits, which stays at the end of its chunk,
// so concatenating the chunks yields the original line. A run without
// whitespace is cut hard at width.
func WrapLine(line string, width int) []string {
	runes := []rune(line)
	if width <= 0 || len(runes) <= width {
		return []string{line}
	}

	var chunks []string
	for len(runes) > width {
		cut := width
		for i := width - 1; i >= 1; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
