package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyAttachments(t *testing.T) {
	attachments := []Attachment{
		{Filename: "a.png", MimeType: "image/png"},
		{Filename: "notes.txt", MimeType: "text/plain"},
		{Filename: "b.jpg", MimeType: "image/jpeg"},
		{Filename: "data.bin", MimeType: "application/octet-stream"},
	}

	images, textFiles := ClassifyAttachments(attachments)

	assert.Equal(t, []string{"a.png", "b.jpg"}, filenames(images))
	assert.Equal(t, []string{"notes.txt", "data.bin"}, filenames(textFiles))
}

func TestClassifyAttachmentsEmpty(t *testing.T) {
	images, textFiles := ClassifyAttachments(nil)
	assert.Empty(t, images)
	assert.Empty(t, textFiles)
}

func TestDecodeText(t *testing.T) {
	text, ok := decodeText([]byte("héllo"))
	assert.True(t, ok)
	assert.Equal(t, "héllo", text)

	text, ok = decodeText([]byte{'o', 'k', 0xff, '!'})
	assert.False(t, ok)
	assert.Equal(t, "ok\uFFFD!", text)
}

func TestEntryFormats(t *testing.T) {
	assert.Equal(t, "[File uploaded: notes.txt]\nContent:\nhi", fileEntry("notes.txt", "hi"))
	assert.Equal(t, "[Image file: pic.png]\na cat", imageEntry("pic.png", "a cat"))
	assert.Equal(t, "[Diagnostic resource: server]\nsrc", diagnosticEntry("server", "src"))
}

func filenames(in []Attachment) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		out = append(out, a.Filename)
	}
	return out
}
