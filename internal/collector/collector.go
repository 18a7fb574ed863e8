// Package collector contains the work dispatcher and the per-source
// collection handlers (GitHub activity, governance artifacts, registry
// metadata, vulnerabilities). Each handler maps one work unit to exactly one
// checkpoint record; the dispatcher fans units out across a bounded worker
// pool and never lets a single unit's failure abort the run.
package collector

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/nikhilgg/oss-transparency/internal/domain"
)

// UnitHandler processes a single work unit to a terminal checkpoint record.
// Implementations classify their own failures: every outcome, including an
// error, is expressed as a record, so failures stay contained at the unit
// boundary.
type UnitHandler interface {
	// Stage names the collection stage for logging and summaries
	Stage() string

	// Handle collects one unit and returns its checkpoint record
	Handle(ctx context.Context, unitID string) *domain.CheckpointRecord
}

// ReadUnitsFile reads a work-unit list file: one identifier per line, blank
// lines and #-comments ignored, duplicates dropped preserving first position.
func ReadUnitsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var units []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		units = append(units, line)
	}
	return units, scanner.Err()
}

// Dedupe drops duplicate unit IDs preserving first occurrence order
func Dedupe(units []string) []string {
	seen := make(map[string]struct{}, len(units))
	out := make([]string, 0, len(units))
	for _, u := range units {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
