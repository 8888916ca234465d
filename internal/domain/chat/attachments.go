package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ClassifyAttachments splits attachments into images and everything else,
// based only on the image/ MIME prefix. Every attachment lands in exactly one
// of the two slices and relative order is kept.
func ClassifyAttachments(attachments []Attachment) (images, textFiles []Attachment) {
	for _, a := range attachments {
		if IsImage(a.MimeType) {
			images = append(images, a)
		} else {
			textFiles = append(textFiles, a)
		}
	}
	return images, textFiles
}

// IsImage reports whether the MIME type denotes an image.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// decodeText interprets attachment bytes as UTF-8. Invalid sequences are
// replaced with U+FFFD and ok is false.
func decodeText(data []byte) (text string, ok bool) {
	if utf8.Valid(data) {
		return string(data), true
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), false
}

func fileEntry(filename, content string) string {
	return fmt.Sprintf("[File uploaded: %s]\nContent:\n%s", filename, content)
}

func imageEntry(filename, description string) string {
	return fmt.Sprintf("[Image file: %s]\n%s", filename, description)
}

func diagnosticEntry(name, content string) string {
	return fmt.Sprintf("[Diagnostic resource: %s]\n%s", name, content)
}

func decodeWarning(filename string) string {
	return fmt.Sprintf("%s: attachment is not valid UTF-8, invalid bytes were replaced", filename)
}
