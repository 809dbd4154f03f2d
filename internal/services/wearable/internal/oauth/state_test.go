package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeState(t *testing.T) {
	assert.Equal(t, "abc123:user-42", ComposeState("abc123", "user-42"))
}

func TestSplitState(t *testing.T) {
	tbl := []struct {
		in     string
		state  string
		userID string
		ok     bool
	}{
		{in: "abc123:user-42", state: "abc123", userID: "user-42", ok: true},
		{in: "abc:user:with:colons", state: "abc", userID: "user:with:colons", ok: true},
		{in: ":user-42", state: "", userID: "user-42", ok: true},
		{in: "abc123", ok: false},
		{in: "abc123:", ok: false},
		{in: "", ok: false},
	}

	for _, c := range tbl {
		t.Run(c.in, func(t *testing.T) {
			state, userID, ok := SplitState(c.in)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.state, state)
			assert.Equal(t, c.userID, userID)
		})
	}
}
