package resolver

import (
	"context"

	"github.com/glefebvre/livetv/internal/playlist"
)

// Manifest declares the addon, with the stored genre list as the genre
// options of the catalog
func (s *Service) Manifest(ctx context.Context) Manifest {
	genres := s.Genres(ctx)
	if genres == nil {
		genres = []string{}
	}

	return Manifest{
		ID:          "org.livetv.addon",
		Version:     s.cfg.Version,
		Name:        "Live TV",
		Description: "Live TV channels and events from a remote playlist, enriched with scraped sources",
		Resources:   []string{"catalog", "meta", "stream"},
		Types:       []string{ContentType},
		IDPrefixes:  []string{playlist.IDPrefix},
		Catalogs: []ManifestCatalog{{
			Type: ContentType,
			ID:   CatalogID,
			Name: "Live TV",
			Extra: []ManifestExtra{
				{Name: "search"},
				{Name: "genre", Options: genres},
				{Name: "skip"},
			},
		}},
	}
}
