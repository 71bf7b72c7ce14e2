package playlist

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/glefebvre/livetv/internal/errors"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/models"
)

// IDPrefix namespaces every channel id exposed by the addon
const IDPrefix = "livetv:"

// Entry is one #EXTINF line paired with its stream line
type Entry struct {
	Position    int
	TvgID       string
	TvgName     string
	TvgLogo     string
	Title       string
	Name        string
	GroupTitle  string
	ExtraGroups []string
	URL         string
	Stream      models.StreamRef
}

// ParseStats tracks parsing statistics
type ParseStats struct {
	ParsedEntries    int
	MalformedEntries int
	TotalLines       int
	Duration         time.Duration
	ErrorsByType     map[string]int
}

// Parser handles M3U playlist parsing
type Parser struct {
	logger *logger.Logger
	stats  ParseStats
}

var (
	tvgIDRegex        = regexp.MustCompile(`tvg-id="([^"]*)"`)
	tvgNameRegex      = regexp.MustCompile(`tvg-name="([^"]*)"`)
	tvgLogoRegex      = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	groupTitleRegex   = regexp.MustCompile(`group-title="([^"]*)"`)
	looseGroupRegex   = regexp.MustCompile(`group-title=([^",\s][^,\s]*)`)
	aceQueryPathRegex = regexp.MustCompile(`/ace/(?:getstream|manifest\.m3u8)$`)
	nonAlnum          = regexp.MustCompile(`[^a-z0-9]+`)
	groupSeparators   = regexp.MustCompile(`[;|]`)
	stripMarks        = runes.Remove(runes.In(unicode.Mn))
)

// NewParser creates a parser logging to log
func NewParser(log *logger.Logger) *Parser {
	if log == nil {
		log = logger.AppLogger()
	}
	return &Parser{
		logger: log,
		stats:  ParseStats{ErrorsByType: make(map[string]int)},
	}
}

// Parse reads a playlist with the application logger
func Parse(data []byte) ([]Entry, error) {
	return NewParser(nil).Parse(data)
}

// Parse turns playlist text into entries in playlist order. It only fails
// when the body does not look like a playlist at all.
func (p *Parser) Parse(data []byte) ([]Entry, error) {
	start := time.Now()
	p.stats = ParseStats{ErrorsByType: make(map[string]int)}

	var (
		entries   []Entry
		current   *Entry
		pendingGr string
		hasHeader bool
		sawExtinf bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		p.stats.TotalLines++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTM3U") {
			hasHeader = true
			continue
		}

		if strings.HasPrefix(line, "#EXTINF") {
			sawExtinf = true
			if current != nil {
				p.malformed("missing_url", lineNumber-1)
			}
			current = p.parseExtinf(line)
			pendingGr = ""
			continue
		}

		if strings.HasPrefix(line, "#EXTGRP:") {
			pendingGr = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		if current == nil {
			p.malformed("orphan_url", lineNumber)
			continue
		}

		current.URL = line
		if current.GroupTitle == "" && pendingGr != "" {
			current.GroupTitle, current.ExtraGroups = splitGroups(pendingGr)
		}
		current.Position = len(entries) + 1
		if current.Name == "" {
			current.Name = fmt.Sprintf("Channel %d", current.Position)
		}
		current.Stream = Classify(line)
		current.Stream.Title = current.Name
		current.Stream.GroupTitle = current.GroupTitle
		current.Stream.ExtraGroups = current.ExtraGroups

		entries = append(entries, *current)
		p.stats.ParsedEntries++
		current = nil
		pendingGr = ""
	}

	if current != nil {
		p.malformed("missing_url", lineNumber)
	}

	if err := scanner.Err(); err != nil {
		return nil, apperrors.ParseError("error reading playlist", err).WithContext("bytes", len(data))
	}

	if !hasHeader && !sawExtinf {
		return nil, apperrors.ParseError("body is not an M3U playlist", nil).WithContext("bytes", len(data))
	}
	if !hasHeader {
		p.stats.ErrorsByType["missing_header"]++
		p.logger.Warn("playlist missing #EXTM3U header")
	}

	p.stats.Duration = time.Since(start)
	p.logger.WithFields(map[string]interface{}{
		"total_lines":      p.stats.TotalLines,
		"parsed":           p.stats.ParsedEntries,
		"malformed":        p.stats.MalformedEntries,
		"duration_seconds": p.stats.Duration.Seconds(),
	}).Debug("playlist parsed")

	return entries, nil
}

func (p *Parser) malformed(kind string, lineNumber int) {
	p.stats.MalformedEntries++
	p.stats.ErrorsByType[kind]++
	p.logger.WithFields(map[string]interface{}{
		"line_number": lineNumber,
		"kind":        kind,
	}).Debug("malformed playlist entry")
}

// parseExtinf extracts attributes and the trailing title of an #EXTINF line
func (p *Parser) parseExtinf(line string) *Entry {
	entry := &Entry{}

	if m := tvgIDRegex.FindStringSubmatch(line); len(m) > 1 {
		entry.TvgID = strings.TrimSpace(m[1])
	}
	if m := tvgNameRegex.FindStringSubmatch(line); len(m) > 1 {
		entry.TvgName = strings.TrimSpace(m[1])
	}
	if m := tvgLogoRegex.FindStringSubmatch(line); len(m) > 1 {
		entry.TvgLogo = strings.TrimSpace(m[1])
	}

	group := ""
	if m := groupTitleRegex.FindStringSubmatch(line); len(m) > 1 {
		group = m[1]
	} else if m := looseGroupRegex.FindStringSubmatch(line); len(m) > 1 {
		group = m[1]
	}
	entry.GroupTitle, entry.ExtraGroups = splitGroups(group)

	entry.Title = trailingTitle(line)

	switch {
	case entry.TvgName != "":
		entry.Name = entry.TvgName
	case entry.Title != "":
		entry.Name = entry.Title
	}

	return entry
}

// trailingTitle returns the free text after the last comma outside quotes
func trailingTitle(line string) string {
	inQuotes := false
	idx := -1
	for i, r := range line {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				idx = i
			}
		}
	}
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}

func splitGroups(raw string) (string, []string) {
	var groups []string
	for _, g := range groupSeparators.Split(raw, -1) {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	if len(groups) == 0 {
		return "", nil
	}
	return groups[0], groups[1:]
}

// Classify maps a stream line to exactly one stream kind
func Classify(raw string) models.StreamRef {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)

	if strings.HasPrefix(lower, "acestream://") {
		return models.StreamRef{Kind: models.StreamAcestream, AceID: raw[len("acestream://"):]}
	}

	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if u, err := url.Parse(raw); err == nil {
			if aceQueryPathRegex.MatchString(u.Path) {
				q := u.Query()
				for _, param := range []string{"id", "infohash", "content_id"} {
					if id := q.Get(param); id != "" {
						return models.StreamRef{Kind: models.StreamAcestream, AceID: id}
					}
				}
			}
			return models.StreamRef{
				Kind:     models.StreamMedia,
				MediaURL: raw,
				HLS:      strings.HasSuffix(strings.ToLower(u.Path), ".m3u8"),
			}
		}
	}

	return models.StreamRef{Kind: models.StreamExternal, ExternalURL: raw}
}

// NormalizeName folds case and diacritics and drops punctuation, so
// "Canal+ Deportes" and "canal deportes" collide
func NormalizeName(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, stripMarks, norm.NFC), name)
	if err != nil {
		folded = name
	}
	return nonAlnum.ReplaceAllString(strings.ToLower(folded), "")
}

// LogicalID derives the channel id shared by merged entries
func LogicalID(e Entry) string {
	if e.TvgID != "" {
		return IDPrefix + strings.ToLower(e.TvgID)
	}
	if e.TvgName != "" || e.Title != "" {
		if n := NormalizeName(e.Name); n != "" {
			return IDPrefix + n
		}
	}
	return fmt.Sprintf("%sch-%d", IDPrefix, e.Position)
}

// GetStats returns the statistics of the last Parse call
func (p *Parser) GetStats() ParseStats {
	return p.stats
}
