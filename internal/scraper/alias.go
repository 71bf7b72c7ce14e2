package scraper

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/glefebvre/livetv/internal/errors"
	"github.com/glefebvre/livetv/internal/playlist"
)

// defaultAliases maps channel names to the labels scrape pages use for them
var defaultAliases = map[string][]string{
	"DAZN 1":                     {"dazn 1", "dazn1"},
	"DAZN 2":                     {"dazn 2", "dazn2"},
	"DAZN LaLiga":                {"dazn laliga", "laliga tv"},
	"Movistar LaLiga":            {"m+ laliga", "movistar laliga", "m. laliga"},
	"Movistar Liga de Campeones": {"m+ liga de campeones", "m. liga de campeones", "champions"},
	"Eurosport 1":                {"eurosport 1", "eurosport1"},
	"Eurosport 2":                {"eurosport 2", "eurosport2"},
	"Sky Sports Premier League":  {"sky sports premier", "sky premier league", "sky pl"},
}

// AliasTable resolves a channel display name to its search terms
type AliasTable struct {
	terms map[string][]string
}

type aliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// NewAliasTable builds a table from name to terms. Names are matched after
// normalization, terms are lowercased.
func NewAliasTable(aliases map[string][]string) *AliasTable {
	t := &AliasTable{terms: make(map[string][]string, len(aliases))}
	for name, terms := range aliases {
		t.Add(name, terms...)
	}
	return t
}

// DefaultAliasTable returns the built-in aliases
func DefaultAliasTable() *AliasTable {
	return NewAliasTable(defaultAliases)
}

// LoadAliasTable reads a YAML alias file over the defaults. An empty path
// returns the defaults.
func LoadAliasTable(path string) (*AliasTable, error) {
	t := DefaultAliasTable()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ConfigError("cannot read alias file", err).WithContext("path", path)
	}
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.ConfigError("invalid alias file", err).WithContext("path", path)
	}
	for name, terms := range f.Aliases {
		t.Set(name, terms...)
	}
	return t, nil
}

// Add appends terms for name
func (t *AliasTable) Add(name string, terms ...string) {
	key := playlist.NormalizeName(name)
	for _, term := range terms {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			t.terms[key] = append(t.terms[key], term)
		}
	}
}

// Set replaces the terms for name
func (t *AliasTable) Set(name string, terms ...string) {
	delete(t.terms, playlist.NormalizeName(name))
	t.Add(name, terms...)
}

// Terms returns the lowercase search terms for name. Names without an
// alias search for themselves.
func (t *AliasTable) Terms(name string) []string {
	if terms, ok := t.terms[playlist.NormalizeName(name)]; ok && len(terms) > 0 {
		out := make([]string, len(terms))
		copy(out, terms)
		return out
	}
	if own := strings.ToLower(strings.TrimSpace(name)); own != "" {
		return []string{own}
	}
	return nil
}

// Matches reports whether label contains any of terms, ignoring case
func Matches(label string, terms []string) bool {
	label = strings.ToLower(label)
	for _, term := range terms {
		if term != "" && strings.Contains(label, term) {
			return true
		}
	}
	return false
}
