package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glefebvre/livetv/internal/epg"
	"github.com/glefebvre/livetv/internal/fingerprint"
	"github.com/glefebvre/livetv/internal/metrics"
	"github.com/glefebvre/livetv/internal/models"
)

// metaRecord is what both tiers store for a meta
type metaRecord struct {
	Meta *Meta `json:"meta"`

	// AiringUntil is the end of the programme shown in the description
	AiringUntil time.Time `json:"airingUntil,omitempty"`
}

// Meta returns the detail view of one channel, or a null meta when the id
// is unknown
func (s *Service) Meta(ctx context.Context, typ, id string) MetaResponse {
	if typ != ContentType {
		return MetaResponse{}
	}

	t := s.table(ctx)
	ch, ok := t.Lookup(id)
	if !ok {
		return MetaResponse{}
	}

	key := fingerprint.Key("meta", t.Fingerprint, id)

	if rec, ok := s.metas.Get(key); ok {
		s.lookup(resolverMeta, metrics.TierMemory, true)
		return MetaResponse{Meta: rec.Meta}
	}
	s.lookup(resolverMeta, metrics.TierMemory, false)

	var rec metaRecord
	if s.store.GetTTL(ctx, key, &rec) && rec.Meta != nil {
		s.lookup(resolverMeta, metrics.TierKV, true)
		s.metas.SetWithTTL(key, rec, s.metaTTL(rec, s.cfg.MemoryTTL))
		return MetaResponse{Meta: rec.Meta}
	}
	s.lookup(resolverMeta, metrics.TierKV, false)

	rec = s.computeMeta(ctx, ch)
	s.metas.SetWithTTL(key, rec, s.metaTTL(rec, s.cfg.MemoryTTL))
	kvTTL := s.cfg.KVTTL
	if !rec.AiringUntil.IsZero() {
		kvTTL = min(kvTTL, s.metaTTL(rec, kvTTL))
	}
	if _, err := s.store.SetTTLIfChanged(ctx, key, rec, kvTTL); err != nil {
		s.logger.WithFields(map[string]interface{}{"key": key}).Warn("meta not persisted")
	}
	return MetaResponse{Meta: rec.Meta}
}

// metaTTL keeps a meta until the programme in its description ends, never
// less than the floor. Without a programme it uses fallback.
func (s *Service) metaTTL(rec metaRecord, fallback time.Duration) time.Duration {
	if rec.AiringUntil.IsZero() {
		return fallback
	}
	return max(s.cfg.MetaFloor, rec.AiringUntil.Sub(s.now()))
}

func (s *Service) computeMeta(ctx context.Context, ch models.Channel) metaRecord {
	meta := &Meta{
		ID:          ch.ID,
		Type:        ContentType,
		Name:        ch.Name,
		Poster:      ch.LogoURL,
		PosterShape: "square",
		Logo:        ch.LogoURL,
		Genres:      s.channelGenres(ch),
	}
	rec := metaRecord{Meta: meta}

	if s.guide == nil || ch.EPGID == "" {
		meta.Description = fmt.Sprintf("%d stream(s) available", len(ch.Streams))
		return rec
	}

	now := s.now()
	guide := s.guide.Guide(ctx)
	current, ok := guide.NowPlaying(ch.EPGID, now)
	if !ok {
		meta.Description = fmt.Sprintf("%d stream(s) available", len(ch.Streams))
		return rec
	}

	meta.Description = describe(current, guide, ch.EPGID)
	meta.ReleaseInfo = fmt.Sprintf("%s-%s", current.Start.Format("15:04"), current.Stop.Format("15:04"))
	rec.AiringUntil = current.Stop
	return rec
}

func describe(current epg.Programme, guide *epg.Guide, epgID string) string {
	var b strings.Builder
	b.WriteString("Now: ")
	b.WriteString(current.Title)
	if current.Description != "" {
		b.WriteString("\n")
		b.WriteString(current.Description)
	}
	if next, ok := guide.Next(epgID, current.Start); ok {
		fmt.Fprintf(&b, "\nNext: %s (%s)", next.Title, next.Start.Format("15:04"))
	}
	return b.String()
}
