package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/glefebvre/livetv/internal/cleanup"
	apperrors "github.com/glefebvre/livetv/internal/errors"
	"github.com/glefebvre/livetv/internal/resolver"
)

func (s *Server) healthCheck(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Store: "none"})
		return
	}
	if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Store:  "unreachable",
			Error:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Store: "ok"})
}

// trimJSON strips the .json suffix addon clients append to the last segment
func trimJSON(p string) string {
	return strings.TrimSuffix(p, ".json")
}

func (s *Server) manifest(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Addon.Manifest(c.Request.Context()))
}

func (s *Server) catalog(c *gin.Context) {
	id := c.Param("id")
	extra := resolver.Extra{}
	if raw := c.Param("extra"); raw != "" {
		extra = resolver.ParseExtra(raw)
	} else {
		id = trimJSON(id)
	}

	c.JSON(http.StatusOK, s.deps.Addon.Catalog(c.Request.Context(), c.Param("type"), id, extra))
}

func (s *Server) meta(c *gin.Context) {
	resp := s.deps.Addon.Meta(c.Request.Context(), c.Param("type"), trimJSON(c.Param("id")))
	c.JSON(http.StatusOK, resp)
}

func (s *Server) stream(c *gin.Context) {
	resp := s.deps.Addon.Stream(c.Request.Context(), c.Param("type"), trimJSON(c.Param("id")))
	c.JSON(http.StatusOK, resp)
}

func (s *Server) runCleanup(c *gin.Context) {
	dryRun, ok := boolQuery(c, "dry_run")
	if !ok {
		return
	}
	if s.deps.Sweeper == nil {
		abortWithError(c, apperrors.New(apperrors.CodeConfig, "cleanup is not configured"))
		return
	}

	res, err := s.deps.Sweeper.Sweep(c.Request.Context(), cleanup.Options{DryRun: dryRun})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, CleanupResponse{Record: res.Record, Report: res.Report})
}

func (s *Server) enrichChannel(c *gin.Context) {
	force, ok := boolQuery(c, "force")
	if !ok {
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		abortWithError(c, apperrors.ValidationError("channel name is required"))
		return
	}

	cands := s.deps.Addon.Enrich(c.Request.Context(), name, force)
	c.JSON(http.StatusOK, EnrichResponse{Name: name, Forced: force, Candidates: cands})
}

func (s *Server) refreshGenres(c *gin.Context) {
	force, ok := boolQuery(c, "force")
	if !ok {
		return
	}

	res := s.deps.Addon.RefreshGenres(c.Request.Context(), force)
	genres := res.Genres
	if genres == nil {
		genres = []string{}
	}
	c.JSON(http.StatusOK, GenresResponse{
		Genres:       genres,
		HashChanged:  res.HashChanged,
		Persisted:    res.Persisted,
		SkippedEmpty: res.SkippedEmpty,
		ForceRefresh: res.ForceRefresh,
		LastUpdated:  res.LastUpdated,
	})
}

// boolQuery reads an optional boolean query parameter. It writes a 400 and
// returns false when the value does not parse.
func boolQuery(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		abortWithError(c, apperrors.ValidationError(name+" must be a boolean"))
		return false, false
	}
	return v, true
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	code := apperrors.GetErrorCode(err)
	c.AbortWithStatusJSON(statusFor(code), ErrorResponse{
		Error:   string(code),
		Message: err.Error(),
	})
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeStoreUnavailable, apperrors.CodeFetch, apperrors.CodeFetchTimeout, apperrors.CodeFetchStatus:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
