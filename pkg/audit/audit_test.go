package audit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steamscope/steamscope/pkg/scrape"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func failure(game, name, raw string) scrape.TimeParseFailure {
	return scrape.TimeParseFailure{Language: "german", GameName: game, Achievement: name, RawText: raw}
}

func TestFlushWritesHeaderAndRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	s := NewSink(path)
	s.now = func() time.Time { return time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC) }

	s.Record(failure("Portal 2", "Lunacy", "kaputt 99:99"))
	s.Record(failure("Portal 2", "Smash TV", "ungültig"))
	require.NoError(t, s.Flush())

	recs := readAll(t, path)
	require.Len(t, recs, 3)
	assert.Equal(t, header, recs[0])
	assert.Equal(t, []string{"2024-07-15T12:00:00Z", "german", "Portal 2", "Lunacy", "kaputt 99:99"}, recs[1])
}

func TestRecordDeduplicates(t *testing.T) {
	s := NewSink(filepath.Join(t.TempDir(), "audit.csv"))
	f := failure("Portal 2", "Lunacy", "kaputt")
	s.Record(f)
	s.Record(f)
	assert.Equal(t, 1, s.Pending())
}

func TestFlushAppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	s := NewSink(path)
	s.Record(failure("Portal 2", "Lunacy", "a"))
	require.NoError(t, s.Flush())

	s2 := NewSink(path)
	s2.Record(failure("Portal 2", "Lunacy", "b"))
	require.NoError(t, s2.Flush())

	recs := readAll(t, path)
	require.Len(t, recs, 3)
	assert.Equal(t, header, recs[0])
}

func TestFlushNoPendingTouchesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	require.NoError(t, NewSink(path).Flush())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty flush must not create the file")
}

func TestLegacyLayoutRotatedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.csv")
	require.NoError(t, os.WriteFile(path, []byte("game,achievement,raw\nPortal 2,Lunacy,old\n"), 0644))

	s := NewSink(path)
	s.Record(failure("Portal 2", "Lunacy", "new"))
	require.NoError(t, s.Flush())

	recs := readAll(t, path)
	require.Len(t, recs, 2)
	assert.Equal(t, header, recs[0])

	matches, err := filepath.Glob(filepath.Join(dir, "audit.*Z.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "legacy file must survive as a timestamped sidecar")
	sidecar, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), "old")
}
