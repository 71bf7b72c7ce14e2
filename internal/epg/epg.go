// Package epg loads an XMLTV guide and answers "what is on now" for the
// meta resolver.
package epg

import (
	"bytes"
	"context"
	"encoding/xml"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	apperrors "github.com/glefebvre/livetv/internal/errors"
	"github.com/glefebvre/livetv/internal/fingerprint"
	"github.com/glefebvre/livetv/internal/logger"
)

// timeLayouts are the XMLTV timestamp forms seen in the wild
var timeLayouts = []string{
	"20060102150405 -0700",
	"20060102150405 MST",
	"20060102150405",
	"200601021504 -0700",
	"200601021504",
}

type xmltv struct {
	XMLName    xml.Name       `xml:"tv"`
	Channels   []xmlChannel   `xml:"channel"`
	Programmes []xmlProgramme `xml:"programme"`
}

type xmlChannel struct {
	ID          string   `xml:"id,attr"`
	DisplayName []string `xml:"display-name"`
}

type xmlProgramme struct {
	Start      string   `xml:"start,attr"`
	Stop       string   `xml:"stop,attr"`
	Channel    string   `xml:"channel,attr"`
	Title      string   `xml:"title"`
	Desc       string   `xml:"desc"`
	Categories []string `xml:"category"`
}

// Programme is one guide entry
type Programme struct {
	ChannelID   string    `json:"channelId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
}

// Remaining returns how long the programme still airs after at
func (p Programme) Remaining(at time.Time) time.Duration {
	if at.After(p.Stop) {
		return 0
	}
	return p.Stop.Sub(at)
}

// Guide holds programmes per channel id, sorted by start time
type Guide struct {
	Fingerprint string
	Names       map[string]string
	Programmes  map[string][]Programme
}

// EmptyGuide answers every lookup with nothing
func EmptyGuide() *Guide {
	return &Guide{Names: map[string]string{}, Programmes: map[string][]Programme{}}
}

// Parse decodes an XMLTV document. Programmes with unreadable times are
// skipped.
func Parse(data []byte) (*Guide, error) {
	var doc xmltv
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, apperrors.ParseError("invalid XMLTV document", err).WithContext("bytes", len(data))
	}

	g := EmptyGuide()
	g.Fingerprint = fingerprint.Of(data)

	for _, ch := range doc.Channels {
		if len(ch.DisplayName) > 0 {
			g.Names[key(ch.ID)] = strings.TrimSpace(ch.DisplayName[0])
		}
	}

	for _, p := range doc.Programmes {
		start, ok := parseTime(p.Start)
		if !ok {
			continue
		}
		stop, ok := parseTime(p.Stop)
		if !ok || !stop.After(start) {
			continue
		}
		id := key(p.Channel)
		g.Programmes[id] = append(g.Programmes[id], Programme{
			ChannelID:   p.Channel,
			Title:       strings.TrimSpace(p.Title),
			Description: strings.TrimSpace(p.Desc),
			Categories:  p.Categories,
			Start:       start,
			Stop:        stop,
		})
	}

	for id := range g.Programmes {
		list := g.Programmes[id]
		sort.Slice(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
	}

	return g, nil
}

func key(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NowPlaying returns the programme airing on channelID at the given time
func (g *Guide) NowPlaying(channelID string, at time.Time) (Programme, bool) {
	list := g.Programmes[key(channelID)]
	i := sort.Search(len(list), func(i int) bool { return list[i].Start.After(at) })
	if i == 0 {
		return Programme{}, false
	}
	p := list[i-1]
	if !at.Before(p.Stop) {
		return Programme{}, false
	}
	return p, true
}

// Next returns the first programme starting after at
func (g *Guide) Next(channelID string, at time.Time) (Programme, bool) {
	list := g.Programmes[key(channelID)]
	i := sort.Search(len(list), func(i int) bool { return list[i].Start.After(at) })
	if i == len(list) {
		return Programme{}, false
	}
	return list[i], true
}

// Len counts programmes across channels
func (g *Guide) Len() int {
	n := 0
	for _, list := range g.Programmes {
		n += len(list)
	}
	return n
}

// Source fetches the raw guide
type Source interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Service memoizes the parsed guide per content fingerprint and refetches
// at most once per refresh interval
type Service struct {
	url     string
	refresh time.Duration
	source  Source
	logger  *logger.Logger
	now     func() time.Time

	mu        sync.Mutex
	guide     *Guide
	lastFetch time.Time
}

// NewService creates a guide service. An empty url disables the guide.
func NewService(url string, refresh time.Duration, source Source, log *logger.Logger) *Service {
	if log == nil {
		log = logger.AppLogger()
	}
	return &Service{url: url, refresh: refresh, source: source, logger: log, now: time.Now}
}

// Guide returns the current guide, fetching it when stale. Failures keep
// the previous guide, or an empty one on a cold service.
func (s *Service) Guide(ctx context.Context) *Guide {
	if s == nil || s.url == "" {
		return EmptyGuide()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.guide != nil && s.now().Sub(s.lastFetch) < s.refresh {
		return s.guide
	}
	s.lastFetch = s.now()

	log := s.logger.WithFields(map[string]interface{}{"url": s.url})
	body, err := s.source.Get(ctx, s.url)
	if err != nil {
		log.Error("guide fetch failed", err)
		return s.fallback()
	}

	fp := fingerprint.Of(body)
	if s.guide != nil && s.guide.Fingerprint == fp {
		return s.guide
	}

	g, err := Parse(body)
	if err != nil {
		log.WithFields(map[string]interface{}{"bytes": len(body)}).Error("guide parse failed", err)
		return s.fallback()
	}

	s.guide = g
	log.WithFields(map[string]interface{}{
		"channels":   len(g.Programmes),
		"programmes": g.Len(),
	}).Info("guide loaded")
	return g
}

func (s *Service) fallback() *Guide {
	if s.guide == nil {
		s.guide = EmptyGuide()
	}
	return s.guide
}
