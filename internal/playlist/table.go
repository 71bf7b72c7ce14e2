package playlist

import (
	"time"

	"github.com/glefebvre/livetv/internal/models"
)

// Table is an immutable snapshot of the merged channels of one playlist body
type Table struct {
	Fingerprint string
	Channels    []models.Channel
	LoadedAt    time.Time

	// Changed is set when a previously persisted fingerprint differs from
	// this one, i.e. the upstream playlist moved since the last load
	Changed bool

	byID map[string]int
}

// BuildTable merges entries sharing a logical id. The first entry supplies
// the primary fields; every entry, the first included, is appended to
// Streams in playlist order.
func BuildTable(entries []Entry, fingerprint string) *Table {
	t := &Table{
		Fingerprint: fingerprint,
		Channels:    make([]models.Channel, 0, len(entries)),
		byID:        make(map[string]int, len(entries)),
	}

	for _, e := range entries {
		id := LogicalID(e)
		if idx, ok := t.byID[id]; ok {
			t.Channels[idx].Streams = append(t.Channels[idx].Streams, e.Stream)
			continue
		}

		t.byID[id] = len(t.Channels)
		t.Channels = append(t.Channels, models.Channel{
			ID:          id,
			Name:        e.Name,
			LogoURL:     e.TvgLogo,
			GroupTitle:  e.GroupTitle,
			ExtraGroups: e.ExtraGroups,
			EPGID:       e.TvgID,
			Primary:     e.Stream,
			Streams:     []models.StreamRef{e.Stream},
		})
	}

	return t
}

// EmptyTable is what a failed load produces
func EmptyTable() *Table {
	return &Table{byID: map[string]int{}}
}

// Lookup finds a channel by id
func (t *Table) Lookup(id string) (models.Channel, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return models.Channel{}, false
	}
	return t.Channels[idx], true
}

// LookupName finds the first channel whose name normalizes like name
func (t *Table) LookupName(name string) (models.Channel, bool) {
	want := NormalizeName(name)
	for _, ch := range t.Channels {
		if NormalizeName(ch.Name) == want {
			return ch, true
		}
	}
	return models.Channel{}, false
}

// Len returns the number of logical channels
func (t *Table) Len() int {
	return len(t.Channels)
}
