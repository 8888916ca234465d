package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	valid := []string{"default", "user-42", "session:abc.def_1", strings.Repeat("a", 128)}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), id)
	}

	invalid := []string{"", "has space", "../etc/passwd", "semi;colon", strings.Repeat("a", 129)}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, id)
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	conv := &Conversation{Messages: []Message{NewTextMessage(RoleSystem, "sys")}}
	snap := conv.Snapshot()
	conv.Messages[0].Content = "changed"

	assert.Equal(t, "sys", snap[0].Content)

	var nilConv *Conversation
	assert.Nil(t, nilConv.Snapshot())
}
