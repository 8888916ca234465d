package fileid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsUniqueAndOrdered(t *testing.T) {
	a := New()
	b := New()

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestReplyFileName(t *testing.T) {
	name := ReplyFileName()
	assert.True(t, strings.HasPrefix(name, "Malan-Ai-"))
	assert.True(t, strings.HasSuffix(name, ".txt"))
	assert.NotContains(t, name, "/")
}
