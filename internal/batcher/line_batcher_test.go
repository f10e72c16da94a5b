package batcher

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEachBatches(t *testing.T) {
	input := "a\nb\r\n\n  \nc\nd\ne"
	var got [][]string
	err := NewLineBatcher(2).Each(strings.NewReader(input), func(batch []string) error {
		got = append(got, append([]string(nil), batch...))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, got)
}

func TestEachStopsOnError(t *testing.T) {
	calls := 0
	err := NewLineBatcher(1).Each(strings.NewReader("a\nb\nc"), func([]string) error {
		calls++
		return errors.New("stop")
	})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, 1, calls)
}

func TestReadAllKeepsLinesVerbatim(t *testing.T) {
	lines, err := NewLineBatcher(0).ReadAll(strings.NewReader("  indented line \nsecond"))
	require.NoError(t, err)
	assert.Equal(t, []string{"  indented line ", "second"}, lines)
}

func TestReadAllLongLine(t *testing.T) {
	long := strings.Repeat("x", 2<<20)
	lines, err := NewLineBatcher(0).ReadAll(strings.NewReader("short line\n" + long + "\nanother\n"))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "short line", lines[0])
	assert.Len(t, lines[1], len(long))
	assert.Equal(t, "another", lines[2])
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestEachReadError(t *testing.T) {
	err := NewLineBatcher(0).Each(failingReader{}, func([]string) error { return nil })
	assert.EqualError(t, err, "disk gone")
}

func TestReadFileMissing(t *testing.T) {
	_, err := NewLineBatcher(0).ReadFile("/nonexistent/railog/input.log")
	assert.Error(t, err)
}
