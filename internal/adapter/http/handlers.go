package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/observation-series-service/internal/domain"
	"github.com/couchcryptid/observation-series-service/internal/query"
)

// maxBodyBytes bounds a single posted observation document.
const maxBodyBytes = 1 << 20

func (s *Server) handleListObservations(c *gin.Context) {
	req, err := parseObservationRequest(c)
	if err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}

	records, err := s.queries.Observations(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	if records == nil {
		records = []domain.ObservationRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"observations": records})
}

func (s *Server) handleInsertObservation(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	if len(body) > maxBodyBytes {
		s.writeError(c, http.StatusRequestEntityTooLarge, errors.New("observation document too large"))
		return
	}

	rec, err := domain.ParseObservation(body)
	if err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	ext, err := s.writer.Insert(c.Request.Context(), rec)
	if err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": rec.ID, "series": ext})
}

func (s *Server) handleDeleteObservation(c *gin.Context) {
	ext, err := s.writer.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": ext})
}

func (s *Server) handleGetSeries(c *gin.Context) {
	ext, err := s.queries.Series(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, ext)
}

func (s *Server) writeError(c *gin.Context, status int, err error) {
	body := gin.H{"error": err.Error(), "request_id": c.GetString(requestIDKey)}
	var sizeErr *domain.ResponseSizeError
	if errors.As(err, &sizeErr) {
		body["limit"] = sizeErr.Limit
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "path", c.FullPath(), "request_id", c.GetString(requestIDKey))
	}
	c.AbortWithStatusJSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidObservation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRecordNotFound), errors.Is(err, domain.ErrSeriesNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrResponseSizeExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// parseObservationRequest reads the filter, temporal and merge parameters.
// List parameters may repeat or carry comma-separated values.
func parseObservationRequest(c *gin.Context) (query.Request, error) {
	var req query.Request
	req.Filter.Procedures = listParam(c, "procedure")
	req.Filter.ObservableProperties = listParam(c, "observedProperty")
	req.Filter.FeaturesOfInterest = listParam(c, "featureOfInterest")
	req.Filter.Offerings = listParam(c, "offering")

	var err error
	if req.Filter.Start, err = timeParam(c, "start"); err != nil {
		return query.Request{}, err
	}
	if req.Filter.End, err = timeParam(c, "end"); err != nil {
		return query.Request{}, err
	}
	if !req.Filter.Start.IsZero() && !req.Filter.End.IsZero() && req.Filter.End.Before(req.Filter.Start) {
		return query.Request{}, errors.New("end is before start")
	}

	if v := c.Query("temporal"); v != "" {
		mode, err := domain.ParseIndeterminateTime(v)
		if err != nil {
			return query.Request{}, err
		}
		req.Temporal = &mode
	}
	if v := c.Query("merge"); v != "" {
		req.Merge, err = strconv.ParseBool(v)
		if err != nil {
			return query.Request{}, errors.New("invalid merge parameter")
		}
	}
	return req, nil
}

func listParam(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func timeParam(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + " timestamp")
	}
	return t.UTC(), nil
}
