package resolver

import (
	"context"

	"github.com/glefebvre/livetv/internal/fingerprint"
	"github.com/glefebvre/livetv/internal/metrics"
	"github.com/glefebvre/livetv/internal/models"
	"github.com/glefebvre/livetv/internal/playlist"
)

// Stream returns the playlist streams of a channel merged with freshly
// scraped candidates. Unknown ids yield an empty list.
func (s *Service) Stream(ctx context.Context, typ, id string) StreamResponse {
	empty := StreamResponse{Streams: []Stream{}}
	if typ != ContentType {
		return empty
	}

	t := s.table(ctx)
	ch, ok := t.Lookup(id)
	if !ok {
		return empty
	}

	key := fingerprint.Key("streams", t.Fingerprint, id)

	if resp, ok := s.streams.Get(key); ok {
		s.lookup(resolverStream, metrics.TierMemory, true)
		return resp
	}
	s.lookup(resolverStream, metrics.TierMemory, false)

	var base []Stream
	if s.store.GetTTL(ctx, key, &base) {
		s.lookup(resolverStream, metrics.TierKV, true)
	} else {
		s.lookup(resolverStream, metrics.TierKV, false)
		base = staticStreams(ch)
		if _, err := s.store.SetTTLIfChanged(ctx, key, base, s.cfg.KVTTL); err != nil {
			s.logger.WithFields(map[string]interface{}{"key": key}).Warn("streams not persisted")
		}
	}

	merged := base
	if s.enricher != nil && len(s.cfg.ScrapePages) > 0 {
		force := s.distrustScrape(ch.Name, t)
		cands := s.enricher.Enrich(ctx, ch.Name, s.cfg.ScrapePages, force)
		merged = MergeCandidates(base, candidateStreams(cands))
	}

	resp := StreamResponse{Streams: merged, DisplayName: ch.Name}
	if resp.Streams == nil {
		resp.Streams = []Stream{}
	}
	s.streams.Set(key, resp)
	return resp
}

// distrustScrape reports whether the cached scrape result for name
// predates the current playlist and must be refreshed, and marks it as
// refreshed
func (s *Service) distrustScrape(name string, t *playlist.Table) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.Changed || s.trusted[name] == t.Fingerprint {
		return false
	}
	s.trusted[name] = t.Fingerprint
	return true
}

// Enrich rescrapes a channel by name and drops its memoized streams
func (s *Service) Enrich(ctx context.Context, name string, force bool) []models.Candidate {
	if s.enricher == nil {
		return []models.Candidate{}
	}
	cands := s.enricher.Enrich(ctx, name, s.cfg.ScrapePages, force)

	t := s.index.Current()
	if ch, ok := t.LookupName(name); ok {
		s.streams.Delete(fingerprint.Key("streams", t.Fingerprint, ch.ID))
	}
	return cands
}

// MergeCandidates puts fresh streams not already present ahead of base.
// Duplicates are detected by playable address; base keeps its order.
func MergeCandidates(base, fresh []Stream) []Stream {
	seen := make(map[string]bool, len(base)+len(fresh))
	for _, st := range base {
		seen[st.Key()] = true
	}

	out := make([]Stream, 0, len(base)+len(fresh))
	for _, st := range fresh {
		k := st.Key()
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, st)
	}
	return append(out, base...)
}

func staticStreams(ch models.Channel) []Stream {
	out := make([]Stream, 0, len(ch.Streams))
	for _, ref := range ch.Streams {
		title := ref.Title
		if ref.GroupTitle != "" {
			title += " [" + ref.GroupTitle + "]"
		}
		out = append(out, streamFromRef(ref, title, ch.ID))
	}
	return out
}

func candidateStreams(cands []models.Candidate) []Stream {
	out := make([]Stream, 0, len(cands))
	for _, c := range cands {
		ref := playlist.Classify(c.ExternalURL)
		title := c.Title
		if title == "" {
			title = c.DisplayName
		}
		st := streamFromRef(ref, title, "")
		st.Name = "Scraped " + st.Name
		out = append(out, st)
	}
	return out
}

func streamFromRef(ref models.StreamRef, title, binge string) Stream {
	st := Stream{Title: title}
	switch ref.Kind {
	case models.StreamAcestream:
		st.Name = "Acestream"
		st.ExternalURL = ref.URL()
		st.BehaviorHints = &BehaviorHints{NotWebReady: true, BingeGroup: binge}
	case models.StreamMedia:
		st.Name = "Direct"
		if ref.HLS {
			st.Name = "HLS"
		}
		st.URL = ref.MediaURL
		if binge != "" || !ref.HLS {
			st.BehaviorHints = &BehaviorHints{NotWebReady: !ref.HLS, BingeGroup: binge}
		}
	default:
		st.Name = "External"
		st.ExternalURL = ref.ExternalURL
	}
	return st
}
