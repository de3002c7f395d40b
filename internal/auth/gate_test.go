package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_Disabled(t *testing.T) {
	g := NewGate("", "ignored")
	assert.False(t, g.Enabled())
	assert.NoError(t, g.Check("anyone", "anything"))
}

func TestGate_Check(t *testing.T) {
	g := NewGate("admin", "hunter2")
	assert.True(t, g.Enabled())

	tests := []struct {
		user, pass string
		ok         bool
	}{
		{"admin", "hunter2", true},
		{"admin", "hunter", false},
		{"Admin", "hunter2", false},
		{"", "", false},
		{"admin", "hunter2 ", false},
	}
	for _, tt := range tests {
		err := g.Check(tt.user, tt.pass)
		if tt.ok {
			assert.NoError(t, err, "%s/%s", tt.user, tt.pass)
		} else {
			assert.True(t, errors.Is(err, ErrInvalidCredentials), "%s/%s", tt.user, tt.pass)
		}
	}
}
