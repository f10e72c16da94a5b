package normalizer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulesFile = `# syslog rules
\[\d+\]: :: [<PID>]:

\b(?:\d{1,3}\.){3}\d{1,3}\b :: <IP>
no separator here
`

func TestNormalizeFirstMatchPerRule(t *testing.T) {
	rules, err := Parse(strings.NewReader(rulesFile))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	n := New(rules)

	tests := []struct {
		in, want string
	}{
		{"sshd[12345]: Accepted publickey for user from 192.168.1.1 port 22", "sshd[<PID>]: Accepted publickey for user from <IP> port 22"},
		{"kernel: [67890]: a message", "kernel: [<PID>]: a message"},
		{"from 10.0.0.1 to 10.0.0.2", "from <IP> to 10.0.0.2"},
		{"nothing to rewrite", "nothing to rewrite"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.Normalize(tt.in))
	}
}

func TestNormalizeReplaceAll(t *testing.T) {
	rules, err := Parse(strings.NewReader(rulesFile))
	require.NoError(t, err)
	n := New(rules, WithReplaceAll(true))
	assert.Equal(t, "from <IP> to <IP>", n.Normalize("from 10.0.0.1 to 10.0.0.2"))
}

func TestNormalizeRulesApplyInOrder(t *testing.T) {
	rules, err := Parse(strings.NewReader("\\d+ :: <NUM>\n<NUM> ms :: <DURATION>\n"))
	require.NoError(t, err)
	assert.Equal(t, "took <DURATION>", New(rules).Normalize("took 15 ms"))
}

func TestNormalizeExpandsGroups(t *testing.T) {
	rules, err := Parse(strings.NewReader(`user=(\w+) :: user=<$1>` + "\n"))
	require.NoError(t, err)
	assert.Equal(t, "login user=<bob> ok", New(rules).Normalize("login user=bob ok"))
}

func TestParseInvalidRegex(t *testing.T) {
	_, err := Parse(strings.NewReader("([ :: x\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.txt")
	require.NoError(t, os.WriteFile(path, []byte(rulesFile), 0o644))

	n, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n.Len())

	_, err = Load(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		defaultOK bool
		wantRules int
		wantErr   error
		wantWarn  bool
	}{
		{name: "explicit path", path: "rules.txt", wantRules: 2},
		{name: "explicit missing path", path: "missing.txt", defaultOK: true, wantErr: os.ErrNotExist},
		{name: "default present", defaultOK: true, wantRules: 2},
		{name: "default absent", wantWarn: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			require.NoError(t, os.WriteFile("rules.txt", []byte(rulesFile), 0o644))
			if tt.defaultOK {
				require.NoError(t, os.WriteFile(DefaultRulesFile, []byte(rulesFile), 0o644))
			}

			var buf bytes.Buffer
			saved := log.Logger
			log.Logger = zerolog.New(&buf)
			t.Cleanup(func() { log.Logger = saved })

			n, err := Open(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, buf.String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRules, n.Len())
			if tt.wantWarn {
				assert.Contains(t, buf.String(), `"level":"warn"`)
				assert.Contains(t, buf.String(), DefaultRulesFile)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}
