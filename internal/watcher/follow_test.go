package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railog/internal/cluster"
	"railog/internal/domain"
	"railog/internal/engine"
	"railog/internal/model"
	"railog/internal/modelstore/memory"
	"railog/internal/service"
)

type fixedEmbedder map[string]domain.Vector

func (fixedEmbedder) Name() string   { return "fixed" }
func (fixedEmbedder) Dimension() int { return 1 }
func (e fixedEmbedder) Embed(_ context.Context, text string) (domain.Vector, error) {
	return append(domain.Vector(nil), e[text]...), nil
}

func setup(t *testing.T) (*service.PatternService, *memory.Storage, string) {
	t.Helper()
	dir := t.TempDir()
	store := memory.NewStorage()
	m, err := model.New(1)
	require.NoError(t, err)
	_, err = m.Append(domain.Vector{0}, 1, "ok")
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), m))

	emb := fixedEmbedder{"ok": {0.1}, "bad": {9}, "old": {0}}
	svc := service.NewPatternService(engine.New(domain.Identity, emb), store, service.Options{
		Clustering:    cluster.Params{Epsilon: 1, MinPoints: 1},
		Matching:      engine.MatchParams{Threshold: 0.5, LearningRate: 0.5},
		UnmatchedFile: filepath.Join(dir, "unmatched.log"),
	})
	return svc, store, dir
}

func appendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFollowIngestsAppendedLines(t *testing.T) {
	svc, store, dir := setup(t)
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, "old\n")

	reports := make(chan engine.IngestReport, 16)
	f := New(svc, path, OnBatch(func(r engine.IngestReport) { reports <- r }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case <-f.Ready():
	case err := <-done:
		t.Fatalf("follower stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("follower not ready")
	}

	// A partial line waits for its newline.
	appendTo(t, path, "ok\nba")
	appendTo(t, path, "d\n")

	var lines []string
	require.Eventually(t, func() bool {
		for {
			select {
			case r := <-reports:
				for _, o := range r.Outcomes {
					lines = append(lines, o.Line)
				}
			default:
				return len(lines) >= 2
			}
		}
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"ok", "bad"}, lines)

	cancel()
	require.NoError(t, <-done)

	data, err := os.ReadFile(filepath.Join(dir, "unmatched.log"))
	require.NoError(t, err)
	assert.Equal(t, "bad\n", string(data))

	m, err := store.Load(context.Background())
	require.NoError(t, err)
	c, _ := m.Centroid(0)
	assert.Equal(t, 2, c.Count, "only the appended matching line counts")
}

func TestFollowFromStart(t *testing.T) {
	svc, store, dir := setup(t)
	path := filepath.Join(dir, "app.log")
	appendTo(t, path, strings.Repeat("ok\n", 3))

	f := New(svc, path, FromStart(true))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case <-f.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("follower not ready")
	}
	cancel()
	require.NoError(t, <-done)

	m, err := store.Load(context.Background())
	require.NoError(t, err)
	c, _ := m.Centroid(0)
	assert.Equal(t, 4, c.Count)
}

func TestFollowWithoutModel(t *testing.T) {
	dir := t.TempDir()
	svc := service.NewPatternService(engine.New(nil, fixedEmbedder{}), memory.NewStorage(), service.Options{})
	err := New(svc, filepath.Join(dir, "app.log")).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}
