package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Level controls how much of a prompt or reply reaches the logs.
type Level string

const (
	// LevelNone logs no user content at all.
	LevelNone Level = "none"
	// LevelHashed replaces detected PII with short salted hashes.
	LevelHashed Level = "hashed"
	// LevelFull logs content untouched.
	LevelFull Level = "full"
)

// PreviewLength is the number of characters kept by Preview.
const PreviewLength = 200

var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	creditCardPattern = regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)
	phonePattern      = regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)
)

// Sanitizer masks PII in log previews.
type Sanitizer struct {
	level Level
	salt  string
}

// New returns a sanitizer; unknown levels behave like LevelHashed.
func New(level, salt string) *Sanitizer {
	l := Level(strings.ToLower(strings.TrimSpace(level)))
	switch l {
	case LevelNone, LevelHashed, LevelFull:
	default:
		l = LevelHashed
	}
	return &Sanitizer{level: l, salt: salt}
}

// Preview sanitizes text and truncates it to PreviewLength characters,
// appending "..." when something was cut.
func (s *Sanitizer) Preview(text string) string {
	text = s.Sanitize(text)
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	return string([]rune(text)[:PreviewLength]) + "..."
}

// Sanitize applies the configured level to text.
func (s *Sanitizer) Sanitize(text string) string {
	if s == nil {
		return text
	}
	switch s.level {
	case LevelNone:
		return "[REDACTED]"
	case LevelFull:
		return text
	default:
		return s.hashPII(text)
	}
}

func (s *Sanitizer) hashPII(input string) string {
	result := emailPattern.ReplaceAllStringFunc(input, func(match string) string {
		return fmt.Sprintf("[EMAIL:%s]", s.hash(match))
	})
	// Cards before phones: a card number contains phone-shaped runs.
	result = creditCardPattern.ReplaceAllString(result, "[CC:REDACTED]")
	result = phonePattern.ReplaceAllStringFunc(result, func(match string) string {
		return fmt.Sprintf("[PHONE:%s]", s.hash(match))
	})
	return result
}

func (s *Sanitizer) hash(data string) string {
	sum := sha256.Sum256([]byte(data + s.salt))
	return hex.EncodeToString(sum[:])[:8]
}
