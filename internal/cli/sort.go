package cli

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// SortOrder represents the available sorting options for backup list
type SortOrder string

const (
	SortByName   SortOrder = "name"
	SortByNewest SortOrder = "newest"
)

// recordPattern matches {category}_{YYYYMMDD_HHMMSS}.json
var recordPattern = regexp.MustCompile(`^(.+)_(\d{8}_\d{6})\.json$`)

// sortBackups sorts record names in place
func sortBackups(names []string, order SortOrder) {
	switch order {
	case SortByName:
		sort.Strings(names)
	case SortByNewest:
		sort.SliceStable(names, func(i, j int) bool {
			return newerThan(names[i], names[j])
		})
	}
}

// newerThan reports whether record a should be listed before record b.
// Records without a parseable stamp go last, by name.
func newerThan(a, b string) bool {
	ta := recordTime(a)
	tb := recordTime(b)

	if !ta.IsZero() && !tb.IsZero() {
		if ta.Equal(tb) {
			return a < b
		}
		return ta.After(tb)
	}
	if !ta.IsZero() {
		return true
	}
	if !tb.IsZero() {
		return false
	}
	return a < b
}

// recordTime returns the stamp embedded in a record name, or the zero time
func recordTime(name string) time.Time {
	m := recordPattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}
	}
	t, err := time.Parse("20060102_150405", m[2])
	if err != nil {
		return time.Time{}
	}
	return t
}

// recordCategory returns the category part of a record name
func recordCategory(name string) string {
	if m := recordPattern.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return strings.TrimSuffix(name, ".json")
}

// filterCategory keeps the records of category; an empty category keeps all
func filterCategory(names []string, category string) []string {
	if category == "" {
		return names
	}
	kept := make([]string, 0, len(names))
	for _, name := range names {
		if recordCategory(name) == category {
			kept = append(kept, name)
		}
	}
	return kept
}
