package models

// StreamKind classifies a playlist stream reference
type StreamKind string

const (
	StreamAcestream StreamKind = "acestream"
	StreamMedia     StreamKind = "media"
	StreamExternal  StreamKind = "external"
)

// StreamRef is one playable reference. Exactly one of AceID, MediaURL and
// ExternalURL is set, matching Kind.
type StreamRef struct {
	Kind        StreamKind `json:"kind"`
	AceID       string     `json:"aceId,omitempty"`
	MediaURL    string     `json:"mediaUrl,omitempty"`
	ExternalURL string     `json:"externalUrl,omitempty"`
	HLS         bool       `json:"hls,omitempty"`
	Title       string     `json:"title,omitempty"`
	GroupTitle  string     `json:"groupTitle,omitempty"`
	ExtraGroups []string   `json:"extraGroups,omitempty"`
}

// URL returns the playable address used for deduplication
func (s StreamRef) URL() string {
	switch s.Kind {
	case StreamAcestream:
		return "acestream://" + s.AceID
	case StreamMedia:
		return s.MediaURL
	default:
		return s.ExternalURL
	}
}

// Channel is one logical channel merged from every playlist entry sharing its id
type Channel struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	LogoURL     string      `json:"logoUrl,omitempty"`
	GroupTitle  string      `json:"groupTitle"`
	ExtraGroups []string    `json:"extraGroups,omitempty"`
	EPGID       string      `json:"epgId,omitempty"`
	Primary     StreamRef   `json:"primary"`
	Streams     []StreamRef `json:"streams"`
}

// Groups returns every group label carried by the channel, primary first,
// without duplicates
func (c Channel) Groups() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(g string) {
		if g == "" || seen[g] {
			return
		}
		seen[g] = true
		out = append(out, g)
	}

	add(c.GroupTitle)
	for _, g := range c.ExtraGroups {
		add(g)
	}
	for _, s := range c.Streams {
		add(s.GroupTitle)
		for _, g := range s.ExtraGroups {
			add(g)
		}
	}
	return out
}

// Candidate is a stream discovered by scraping a third-party page
type Candidate struct {
	DisplayName string `json:"displayName"`
	Title       string `json:"title"`
	ExternalURL string `json:"externalUrl"`
}
