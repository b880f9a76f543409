// Package store is the durable, day-partitioned record store: raw and
// aggregated tiers, retention eviction, atomic partition writes.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store persists day partitions under dataDir. Writers are serialized by a
// mutex; readers never lock, because partitions are replaced atomically and
// a reader sees either the pre- or post-write file, never a torn state.
type Store struct {
	dataDir string
	mu      sync.Mutex
}

func New(dataDir string) (*Store, error) {
	s := &Store{dataDir: dataDir}
	if err := s.ensureDirs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureDirs() error {
	for _, dir := range []string{
		s.dataDir,
		s.summariesDir(),
		filepath.Join(s.dataDir, "profiles"),
		s.screenshotsDir(),
		s.logsDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Store) summariesDir() string   { return filepath.Join(s.dataDir, "summaries") }
func (s *Store) screenshotsDir() string { return filepath.Join(s.dataDir, "screenshots") }
func (s *Store) logsDir() string        { return filepath.Join(s.dataDir, "logs") }

func (s *Store) dayPath(date string) string {
	return filepath.Join(s.summariesDir(), date+".json")
}

func (s *Store) screenshotPath(name string) string {
	return filepath.Join(s.screenshotsDir(), name)
}

// Append adds one record to its day partition and synthesizes an
// AggregatedRecord for every full window the partition has grown past.
// The partition is rewritten atomically.
func (s *Store) Append(record SummaryRecord) error {
	if len(record.Timestamp) < len(DayLayout) {
		return fmt.Errorf("append: bad timestamp %q", record.Timestamp)
	}
	date := record.Timestamp[:len(DayLayout)]

	s.mu.Lock()
	defer s.mu.Unlock()

	day, err := s.loadDayLocked(date)
	if err != nil {
		return err
	}

	day.Records = append(day.Records, record)

	// A window is aggregated once the first record beyond it has arrived;
	// the last exactly-full window stays raw until then.
	target := aggregatedTarget(len(day.Records))
	for len(day.Aggregated) < target {
		start := len(day.Aggregated) * AggregationWindow
		window := day.Records[start : start+AggregationWindow]
		day.Aggregated = append(day.Aggregated, aggregateRecords(window))
	}

	return s.writeDayLocked(day)
}

func aggregatedTarget(recordCount int) int {
	if recordCount <= AggregationWindow {
		return 0
	}
	return (recordCount - 1) / AggregationWindow
}

// LoadDay returns the partition for date; an empty partition when the file
// does not exist.
func (s *Store) LoadDay(date string) (*DaySummary, error) {
	return s.loadDayLocked(date)
}

func (s *Store) loadDayLocked(date string) (*DaySummary, error) {
	data, err := os.ReadFile(s.dayPath(date))
	if err != nil {
		if os.IsNotExist(err) {
			return &DaySummary{Date: date}, nil
		}
		return nil, fmt.Errorf("read partition %s: %w", date, err)
	}

	var day DaySummary
	if err := json.Unmarshal(data, &day); err != nil {
		return nil, fmt.Errorf("parse partition %s: %w", date, err)
	}
	if day.Date == "" {
		day.Date = date
	}
	return &day, nil
}

// Summaries returns the raw records of one day.
func (s *Store) Summaries(date string) ([]SummaryRecord, error) {
	day, err := s.LoadDay(date)
	if err != nil {
		return nil, err
	}
	return day.Records, nil
}

// Days lists the dates with an existing partition, oldest first.
func (s *Store) Days() ([]string, error) {
	entries, err := os.ReadDir(s.summariesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read summaries dir: %w", err)
	}

	var days []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		date := strings.TrimSuffix(name, ".json")
		if _, err := time.Parse(DayLayout, date); err != nil {
			continue
		}
		days = append(days, date)
	}
	sort.Strings(days)
	return days, nil
}

// writeDayLocked rewrites one partition with write-new-then-replace so an
// interrupted write never leaves a partial file visible to readers.
func (s *Store) writeDayLocked(day *DaySummary) error {
	data, err := json.MarshalIndent(day, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal partition %s: %w", day.Date, err)
	}

	path := s.dayPath(day.Date)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write partition %s: %w", day.Date, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace partition %s: %w", day.Date, err)
	}
	return nil
}

// SaveScreenshot stores an encoded JPEG and returns the filename recorded
// as the owning record's detail_ref.
func (s *Store) SaveScreenshot(jpeg []byte, now time.Time) (string, error) {
	filename := fmt.Sprintf("%s-%03d.jpg", now.Format("20060102-150405"), now.Nanosecond()/1e6)
	if err := os.WriteFile(filepath.Join(s.screenshotsDir(), filename), jpeg, 0644); err != nil {
		return "", fmt.Errorf("save screenshot: %w", err)
	}
	return filename, nil
}

// WriteLogSnapshot writes a timestamped diagnostics file under logs/.
func (s *Store) WriteLogSnapshot(prefix, content string) (string, error) {
	now := time.Now()
	filename := fmt.Sprintf("%s-%03d-%s.log",
		now.Format("20060102-150405"), now.Nanosecond()/1e6, sanitizeLogPrefix(prefix))
	path := filepath.Join(s.logsDir(), filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write log snapshot: %w", err)
	}
	return path, nil
}

func sanitizeLogPrefix(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		if r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "log"
	}
	return b.String()
}
