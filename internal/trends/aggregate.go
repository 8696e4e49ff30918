// Package trends turns fresh signals into windowed metric snapshots and
// trend classifications per industry and theme.
package trends

import (
	"sort"
	"strings"
	"time"
)

type ScopeType string

const (
	ScopeIndustry ScopeType = "industry"
	ScopeTheme    ScopeType = "theme"
)

const (
	Period7d  = "7d"
	Period30d = "30d"

	// ComparisonWindowDays covers last30 plus prev30. Freshness windows
	// shorter than this would leave prev30 empty.
	ComparisonWindowDays = 60

	day = 24 * time.Hour
)

// StatRow is one persisted signal reduced to what aggregation needs.
type StatRow struct {
	SignalID        int64
	Type            string
	Themes          []string
	Industry        string
	PublishedAt     *time.Time
	NeedsDateReview bool
}

// FilterFresh drops rows awaiting date review, rows without a publication
// date and rows published more than windowDays before now.
func FilterFresh(rows []StatRow, now time.Time, windowDays int) []StatRow {
	cutoff := now.Add(-time.Duration(windowDays) * day)
	out := make([]StatRow, 0, len(rows))
	for _, row := range rows {
		if row.NeedsDateReview || row.PublishedAt == nil {
			continue
		}
		if row.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, row)
	}
	return out
}

type ScopeKey struct {
	Type ScopeType
	ID   string
}

// Distribution counts signal types and themes inside one window.
type Distribution struct {
	Types  map[string]int `json:"types"`
	Themes map[string]int `json:"themes"`
}

func newDistribution() Distribution {
	return Distribution{Types: map[string]int{}, Themes: map[string]int{}}
}

func (d Distribution) add(row StatRow, themes []string) {
	d.Types[normalizeLabel(row.Type, "other")]++
	for _, theme := range themes {
		d.Themes[theme]++
	}
}

// ScopeStats holds window counts for one scope. Last7 is a subset of Last30;
// Prev30 covers the 30 days before Last30.
type ScopeStats struct {
	Key    ScopeKey
	Last7  int
	Last30 int
	Prev30 int
	Dist7  Distribution
	Dist30 Distribution
}

// Aggregate buckets rows into per-scope window counts relative to now. Rows
// dated in the future are ignored. Output is sorted by scope type then id.
func Aggregate(rows []StatRow, now time.Time) []ScopeStats {
	byKey := make(map[ScopeKey]*ScopeStats)
	get := func(key ScopeKey) *ScopeStats {
		stats, ok := byKey[key]
		if !ok {
			stats = &ScopeStats{Key: key, Dist7: newDistribution(), Dist30: newDistribution()}
			byKey[key] = stats
		}
		return stats
	}

	for _, row := range rows {
		if row.PublishedAt == nil {
			continue
		}
		age := now.Sub(*row.PublishedAt)
		if age < 0 || age >= ComparisonWindowDays*day {
			continue
		}

		themes := normalizeThemes(row.Themes)
		keys := make([]ScopeKey, 0, len(themes)+1)
		if industry := normalizeLabel(row.Industry, ""); industry != "" {
			keys = append(keys, ScopeKey{Type: ScopeIndustry, ID: industry})
		}
		for _, theme := range themes {
			keys = append(keys, ScopeKey{Type: ScopeTheme, ID: theme})
		}

		for _, key := range keys {
			stats := get(key)
			switch {
			case age < 7*day:
				stats.Last7++
				stats.Last30++
				stats.Dist7.add(row, themes)
				stats.Dist30.add(row, themes)
			case age < 30*day:
				stats.Last30++
				stats.Dist30.add(row, themes)
			default:
				stats.Prev30++
			}
		}
	}

	out := make([]ScopeStats, 0, len(byKey))
	for _, stats := range byKey {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Type != out[j].Key.Type {
			return out[i].Key.Type < out[j].Key.Type
		}
		return out[i].Key.ID < out[j].Key.ID
	})
	return out
}

// Snapshot is one point of the metrics time series.
type Snapshot struct {
	Key          ScopeKey
	Period       string
	CurrentCount int
	PrevCount    *int
	DeltaPercent *float64
	Distribution Distribution
}

// Snapshots emits the 7d and 30d points for one scope. Only the 30d point
// carries a baseline, and its delta stays nil when the baseline is zero.
func (s ScopeStats) Snapshots() [2]Snapshot {
	prev := s.Prev30
	return [2]Snapshot{
		{
			Key:          s.Key,
			Period:       Period7d,
			CurrentCount: s.Last7,
			Distribution: s.Dist7,
		},
		{
			Key:          s.Key,
			Period:       Period30d,
			CurrentCount: s.Last30,
			PrevCount:    &prev,
			DeltaPercent: DeltaPercent(s.Last30, s.Prev30),
			Distribution: s.Dist30,
		},
	}
}

// DeltaPercent is (current-prev)/prev*100, or nil when prev is not positive.
func DeltaPercent(current, prev int) *float64 {
	if prev <= 0 {
		return nil
	}
	v := float64(current-prev) / float64(prev) * 100
	return &v
}

// TopN returns up to n keys by descending count, ties broken alphabetically.
func TopN(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k, c := range counts {
		if c > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func normalizeThemes(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, theme := range raw {
		t := normalizeLabel(theme, "")
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeLabel(raw, fallback string) string {
	trimmed := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
