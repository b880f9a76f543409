package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Maintain enforces the retention boundary: day partitions wholly older than
// retentionDays are deleted, then the oldest raw records are evicted until
// the total count is back under maxRecords. Eviction is a maintenance
// operation; queries never depend on it for correctness.
func (s *Store) Maintain(retentionDays, maxRecords int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.AddDate(0, 0, -retentionDays).Format(DayLayout)

	days, err := s.Days()
	if err != nil {
		return err
	}

	var kept []string
	for _, date := range days {
		if date < cutoff {
			if err := os.Remove(s.dayPath(date)); err != nil {
				return fmt.Errorf("evict partition %s: %w", date, err)
			}
			log.Printf("[store] evicted partition %s (older than %d days)", date, retentionDays)
			continue
		}
		kept = append(kept, date)
	}

	s.pruneScreenshots(cutoff)
	s.pruneLogs(cutoff)

	if maxRecords <= 0 {
		return nil
	}
	return s.evictOverCountLocked(kept, maxRecords)
}

// evictOverCountLocked trims oldest-first across partitions until the total
// raw record count fits maxRecords.
func (s *Store) evictOverCountLocked(days []string, maxRecords int) error {
	type partition struct {
		day   *DaySummary
		count int
	}

	total := 0
	parts := make([]partition, 0, len(days))
	for _, date := range days {
		day, err := s.loadDayLocked(date)
		if err != nil {
			return err
		}
		parts = append(parts, partition{day: day, count: len(day.Records)})
		total += len(day.Records)
	}

	excess := total - maxRecords
	for _, p := range parts {
		if excess <= 0 {
			break
		}
		if p.count <= excess {
			if err := os.Remove(s.dayPath(p.day.Date)); err != nil {
				return fmt.Errorf("evict partition %s: %w", p.day.Date, err)
			}
			log.Printf("[store] evicted partition %s (over record cap)", p.day.Date)
			excess -= p.count
			continue
		}

		drop := trimToWindowBoundary(p.day, excess)
		if err := s.writeDayLocked(p.day); err != nil {
			return err
		}
		log.Printf("[store] trimmed %d records from partition %s", drop, p.day.Date)
		excess = 0
	}
	return nil
}

// trimToWindowBoundary evicts at least excess of the partition's oldest
// records. Eviction is window-aligned: aggregated windows cover the first
// len(Aggregated)*AggregationWindow records, so when the excess lands
// inside a window the whole window and its records go, keeping every
// surviving window matched to its record span. Returns the number of
// records actually dropped.
func trimToWindowBoundary(day *DaySummary, excess int) int {
	drop := excess
	if covered := len(day.Aggregated) * AggregationWindow; drop < covered {
		windows := (drop + AggregationWindow - 1) / AggregationWindow
		day.Aggregated = day.Aggregated[windows:]
		drop = windows * AggregationWindow
	} else {
		day.Aggregated = nil
	}
	day.Records = day.Records[drop:]
	return drop
}

// pruneScreenshots removes screenshot files older than the day cutoff. File
// names embed the capture day as a 20060102 prefix.
func (s *Store) pruneScreenshots(cutoff string) {
	s.pruneByDatePrefix(s.screenshotsDir(), cutoff)
}

func (s *Store) pruneLogs(cutoff string) {
	s.pruneByDatePrefix(s.logsDir(), cutoff)
}

func (s *Store) pruneByDatePrefix(dir, cutoff string) {
	compactCutoff := ""
	if t, err := time.Parse(DayLayout, cutoff); err == nil {
		compactCutoff = t.Format("20060102")
	} else {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) < len(compactCutoff) {
			continue
		}
		if name[:len(compactCutoff)] < compactCutoff {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				log.Printf("[store] prune %s failed: %v", name, err)
			}
		}
	}
}
