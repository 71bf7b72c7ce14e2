package resolver

import (
	"net/url"
	"strconv"
	"strings"
)

// ContentType is the only content type the addon serves
const ContentType = "tv"

// CatalogID names the single channel catalog
const CatalogID = "livetv"

// Extra carries the optional catalog arguments
type Extra struct {
	Search string
	Genre  string
	Skip   int
}

// ParseExtra reads a "genre=Sports&skip=100" style extra segment. Unknown
// keys and bad numbers are ignored.
func ParseExtra(raw string) Extra {
	raw = strings.TrimSuffix(raw, ".json")
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Extra{}
	}
	e := Extra{
		Search: strings.TrimSpace(values.Get("search")),
		Genre:  strings.TrimSpace(values.Get("genre")),
	}
	if n, err := strconv.Atoi(values.Get("skip")); err == nil && n > 0 {
		e.Skip = n
	}
	return e
}

func (e Extra) cacheKey() string {
	return "search=" + strings.ToLower(e.Search) + "&genre=" + e.Genre + "&skip=" + strconv.Itoa(e.Skip)
}

// MetaPreview is one catalog item
type MetaPreview struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Poster      string   `json:"poster,omitempty"`
	PosterShape string   `json:"posterShape,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

// CatalogResponse lists catalog items
type CatalogResponse struct {
	Metas []MetaPreview `json:"metas"`
}

// Meta is the detail view of one channel
type Meta struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Poster      string   `json:"poster,omitempty"`
	PosterShape string   `json:"posterShape,omitempty"`
	Logo        string   `json:"logo,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Description string   `json:"description,omitempty"`
	ReleaseInfo string   `json:"releaseInfo,omitempty"`
}

// MetaResponse wraps a meta; Meta is null for unknown ids
type MetaResponse struct {
	Meta *Meta `json:"meta"`
}

// BehaviorHints tell the player how to treat a stream
type BehaviorHints struct {
	NotWebReady bool   `json:"notWebReady,omitempty"`
	BingeGroup  string `json:"bingeGroup,omitempty"`
}

// Stream is one playable source
type Stream struct {
	Name          string         `json:"name"`
	Title         string         `json:"title,omitempty"`
	URL           string         `json:"url,omitempty"`
	ExternalURL   string         `json:"externalUrl,omitempty"`
	BehaviorHints *BehaviorHints `json:"behaviorHints,omitempty"`
}

// Key is the playable address used to spot duplicates
func (s Stream) Key() string {
	if s.URL != "" {
		return s.URL
	}
	return s.ExternalURL
}

// StreamResponse lists the streams of one channel
type StreamResponse struct {
	Streams     []Stream `json:"streams"`
	DisplayName string   `json:"displayName,omitempty"`
}

// ManifestExtra declares one catalog argument
type ManifestExtra struct {
	Name       string   `json:"name"`
	IsRequired bool     `json:"isRequired,omitempty"`
	Options    []string `json:"options,omitempty"`
}

// ManifestCatalog declares one catalog
type ManifestCatalog struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Extra []ManifestExtra `json:"extra"`
}

// Manifest describes the addon to clients
type Manifest struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Resources   []string          `json:"resources"`
	Types       []string          `json:"types"`
	IDPrefixes  []string          `json:"idPrefixes"`
	Catalogs    []ManifestCatalog `json:"catalogs"`
}
