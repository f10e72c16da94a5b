package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railog/internal/config"
)

func TestNewEngineRulesFile(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.txt")
	require.NoError(t, os.WriteFile(rules, []byte(`\d+ :: <N>`+"\n"), 0o644))

	cfg := config.Default()
	cfg.Normalizer.RulesFile = rules
	eng, err := NewEngine(cfg, vectors)
	require.NoError(t, err)
	assert.Equal(t, "took <N> ms", eng.Normalize("took 12 ms"))

	cfg.Normalizer.RulesFile = filepath.Join(dir, "missing.txt")
	_, err = NewEngine(cfg, vectors)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
