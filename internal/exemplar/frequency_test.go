package exemplar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickMostTypicalLine(t *testing.T) {
	lines := []string{
		"sshd[<PID>]: Accepted publickey for alice",
		"sshd[<PID>]: Accepted publickey for bob",
		"sshd[<PID>]: Accepted password for carol after <NUM> attempts with legacy client",
		"sshd[<PID>]: Accepted publickey for dave",
	}
	assert.Equal(t, lines[0], NewFrequencyPicker().Pick(lines))
}

func TestPickEdgeCases(t *testing.T) {
	p := NewFrequencyPicker()
	assert.Equal(t, "", p.Pick(nil))
	assert.Equal(t, "only", p.Pick([]string{"  only  "}))
	assert.Equal(t, "...", p.Pick([]string{"...", "!!!"}))
}
