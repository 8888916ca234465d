package requests

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlag(t *testing.T) {
	for _, v := range []string{"true", "1", "TRUE", " true "} {
		assert.True(t, bool(ParseFlag(v)), v)
	}
	for _, v := range []string{"", "false", "0", "yes", "on"} {
		assert.False(t, bool(ParseFlag(v)), v)
	}
}

func TestFlagUnmarshalJSON(t *testing.T) {
	cases := map[string]bool{
		`{"createfile": true}`:   true,
		`{"createfile": "1"}`:    true,
		`{"createfile": 1}`:      true,
		`{"createfile": "yes"}`:  false,
		`{"createfile": false}`:  false,
		`{"createfile": null}`:   false,
		`{"createfile": "true"}`: true,
	}
	for body, want := range cases {
		var req ChatRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req), body)
		assert.Equal(t, want, bool(req.CreateFile), body)
	}
}

func TestToDomain(t *testing.T) {
	req := ChatRequest{Message: "hi", IncludeServerFile: true, ConversationID: "c1"}
	turn := req.ToDomain(nil)
	assert.Equal(t, "hi", turn.Message)
	assert.Equal(t, "c1", turn.ConversationID)
	assert.True(t, turn.IncludeDiagnostics)
}
