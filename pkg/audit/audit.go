// Package audit persists unlock-time parse failures to a CSV file so locale
// regressions can be triaged from the field long after the run that hit
// them.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/steamscope/steamscope/internal/utils"
	"github.com/steamscope/steamscope/pkg/scrape"
)

var header = []string{"error_time_utc", "steam_language", "game_name", "achievement_name", "raw_scraped_time"}

// Sink appends parse failures to a CSV file. Records are deduplicated per
// sink lifetime on (language, game, achievement, raw text) and buffered
// until Flush, so a game with fifty broken rows costs one write.
type Sink struct {
	path string

	mu      sync.Mutex
	seen    map[string]struct{}
	pending [][]string
	now     func() time.Time
}

func NewSink(path string) *Sink {
	return &Sink{
		path: path,
		seen: make(map[string]struct{}),
		now:  time.Now,
	}
}

// Record queues one failure. Duplicates are dropped silently.
func (s *Sink) Record(f scrape.TimeParseFailure) {
	key := strings.Join([]string{f.Language, f.GameName, f.Achievement, f.RawText}, "\x1f")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.pending = append(s.pending, []string{
		s.now().UTC().Format(time.RFC3339),
		f.Language,
		f.GameName,
		f.Achievement,
		f.RawText,
	})
}

// Pending returns the number of queued, unflushed records.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush appends the queued records to the file, writing the header first on
// a fresh file. An existing file whose header does not match the current
// layout is rotated aside rather than appended to.
func (s *Sink) Flush() error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	writeHeader, err := s.prepareFile()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	for _, rec := range pending {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	utils.Log.WithField("records", len(pending)).WithField("file", s.path).Debug("Flushed audit records")
	return nil
}

// prepareFile decides whether the header row is still owed, rotating a file
// with a foreign header out of the way first.
func (s *Sink) prepareFile() (writeHeader bool, err error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	first, readErr := csv.NewReader(f).Read()
	f.Close()
	if readErr != nil {
		// Empty or unreadable file: rotate and start over.
		return true, s.rotate()
	}
	if !strings.EqualFold(strings.TrimSpace(first[0]), header[0]) || len(first) != len(header) {
		utils.Log.WithField("file", s.path).Warn("Audit file has an older layout, rotating it aside")
		return true, s.rotate()
	}
	return false, nil
}

func (s *Sink) rotate() error {
	ext := filepath.Ext(s.path)
	sidecar := fmt.Sprintf("%s.%s%s", strings.TrimSuffix(s.path, ext), time.Now().UTC().Format("20060102T150405Z"), ext)
	return os.Rename(s.path, sidecar)
}
