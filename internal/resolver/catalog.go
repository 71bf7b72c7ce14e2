package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/glefebvre/livetv/internal/fingerprint"
	"github.com/glefebvre/livetv/internal/metrics"
	"github.com/glefebvre/livetv/internal/models"
)

// Catalog lists the channels of a catalog, filtered by genre, ranked by a
// fuzzy search and paged by skip. Unknown types or catalog ids yield an
// empty list.
func (s *Service) Catalog(ctx context.Context, typ, id string, extra Extra) CatalogResponse {
	empty := CatalogResponse{Metas: []MetaPreview{}}
	if typ != ContentType || id != CatalogID {
		return empty
	}

	t := s.table(ctx)
	if t.Len() == 0 {
		return empty
	}

	key := fingerprint.Key("catalog", t.Fingerprint, typ, id, fingerprint.Short(fingerprint.OfString(extra.cacheKey())))

	if resp, ok := s.catalogs.Get(key); ok {
		s.lookup(resolverCatalog, metrics.TierMemory, true)
		return resp
	}
	s.lookup(resolverCatalog, metrics.TierMemory, false)

	var resp CatalogResponse
	if s.store.GetTTL(ctx, key, &resp) {
		s.lookup(resolverCatalog, metrics.TierKV, true)
		if resp.Metas == nil {
			resp.Metas = []MetaPreview{}
		}
		s.catalogs.Set(key, resp)
		return resp
	}
	s.lookup(resolverCatalog, metrics.TierKV, false)

	resp = s.computeCatalog(t.Channels, extra)
	s.catalogs.Set(key, resp)
	if _, err := s.store.SetTTLIfChanged(ctx, key, resp, s.cfg.KVTTL); err != nil {
		s.logger.WithFields(map[string]interface{}{"key": key}).Warn("catalog not persisted")
	}
	return resp
}

func (s *Service) computeCatalog(channels []models.Channel, extra Extra) CatalogResponse {
	filtered := channels
	if extra.Genre != "" {
		filtered = make([]models.Channel, 0, len(channels))
		for _, ch := range channels {
			if hasGenre(s.channelGenres(ch), extra.Genre) {
				filtered = append(filtered, ch)
			}
		}
	}

	if extra.Search != "" {
		filtered = search(filtered, extra.Search)
	}

	if extra.Skip >= len(filtered) {
		return CatalogResponse{Metas: []MetaPreview{}}
	}
	page := filtered[extra.Skip:]
	if len(page) > s.cfg.PageSize {
		page = page[:s.cfg.PageSize]
	}

	metas := make([]MetaPreview, 0, len(page))
	for _, ch := range page {
		metas = append(metas, MetaPreview{
			ID:          ch.ID,
			Type:        ContentType,
			Name:        ch.Name,
			Poster:      ch.LogoURL,
			PosterShape: "square",
			Genres:      s.channelGenres(ch),
		})
	}
	return CatalogResponse{Metas: metas}
}

func hasGenre(genres []string, want string) bool {
	for _, g := range genres {
		if strings.EqualFold(g, want) {
			return true
		}
	}
	return false
}

// search keeps channels whose name fuzzily contains query, best match first
func search(channels []models.Channel, query string) []models.Channel {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name
	}

	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].OriginalIndex < ranks[j].OriginalIndex
	})

	out := make([]models.Channel, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, channels[r.OriginalIndex])
	}
	return out
}
