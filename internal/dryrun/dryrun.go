// Package dryrun describes what a cleanup sweep would delete without
// deleting anything.
package dryrun

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Report is the outcome of a dry-run sweep
type Report struct {
	Timestamp string         `json:"timestamp"`
	Scanned   int            `json:"scanned"`
	ToDelete  int            `json:"toDelete"`
	Keys      []string       `json:"keys"`
	ByPrefix  map[string]int `json:"byPrefix"`
}

// NewReport builds a report for the eligible keys of a sweep
func NewReport(scanned int, eligible []string, now time.Time) *Report {
	r := &Report{
		Timestamp: now.Format(time.RFC3339),
		Scanned:   scanned,
		ToDelete:  len(eligible),
		Keys:      append(make([]string, 0, len(eligible)), eligible...),
		ByPrefix:  make(map[string]int),
	}
	for _, k := range eligible {
		r.ByPrefix[Prefix(k)]++
	}
	return r
}

// Prefix is the key kind, the part before the first ':'
func Prefix(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// PrintSummary writes a human-readable summary of the report
func PrintSummary(w io.Writer, r *Report) {
	fmt.Fprintln(w, "\n=== Cleanup Dry-Run Summary ===")
	fmt.Fprintf(w, "Timestamp: %s\n", r.Timestamp)
	fmt.Fprintf(w, "Keys scanned: %d\n", r.Scanned)
	fmt.Fprintf(w, "Keys to delete: %d\n", r.ToDelete)

	if len(r.ByPrefix) == 0 {
		return
	}

	prefixes := make([]string, 0, len(r.ByPrefix))
	for p := range r.ByPrefix {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if r.ByPrefix[prefixes[i]] != r.ByPrefix[prefixes[j]] {
			return r.ByPrefix[prefixes[i]] > r.ByPrefix[prefixes[j]]
		}
		return prefixes[i] < prefixes[j]
	})

	fmt.Fprintln(w, "\nBy prefix:")
	for _, p := range prefixes {
		fmt.Fprintf(w, "  - %s: %d\n", p, r.ByPrefix[p])
	}

	if len(r.Keys) > 0 {
		fmt.Fprintln(w, "\n=== Sample Keys (first 5) ===")
		for i, k := range r.Keys {
			if i >= 5 {
				break
			}
			fmt.Fprintf(w, "%d. %s\n", i+1, k)
		}
	}
}
