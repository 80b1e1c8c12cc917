package server

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	ratedomain "github.com/railzwaylabs/bullion/internal/rate/domain"
)

// parseRecordRates reads {"date"?: "YYYY-MM-DD", "<material>": {"<purity>": rate}}.
// Every key other than date names a material.
func parseRecordRates(body []byte) (ratedomain.RecordRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return ratedomain.RecordRequest{}, invalidRequestError()
	}

	req := ratedomain.RecordRequest{Rates: make(map[string]map[string]float64, len(raw))}
	for key, value := range raw {
		if key == "date" {
			if err := json.Unmarshal(value, &req.Date); err != nil {
				return ratedomain.RecordRequest{}, newValidationError("date", "invalid_date", "date must be a YYYY-MM-DD string")
			}
			req.Date = strings.TrimSpace(req.Date)
			continue
		}
		var purities map[string]float64
		if err := json.Unmarshal(value, &purities); err != nil || purities == nil {
			return ratedomain.RecordRequest{}, newValidationError(key, "invalid_rate", "rates must map purity to a number")
		}
		req.Rates[key] = purities
	}
	return req, nil
}

// @Summary      Record Rates
// @Description  Append a rate snapshot per material for a day. Body: {"date": "YYYY-MM-DD" (optional), "<material>": {"<purity>": rate}}
// @Tags         rates
// @Accept       json
// @Produce      json
// @Param        request body object true "Rates by material and purity"
// @Success      201  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /rates [post]
func (s *Server) RecordRates(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req, err := parseRecordRates(body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	day, err := s.rateSvc.RecordRates(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondCreated(c, day)
}

// @Summary      Latest Rates
// @Description  Rates for the given day, falling back to the most recent earlier day
// @Tags         rates
// @Produce      json
// @Param        date  query  string  false  "Day (YYYY-MM-DD), defaults to today"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /rates/latest [get]
func (s *Server) GetLatestRates(c *gin.Context) {
	day, err := s.rateSvc.LatestRates(c.Request.Context(), strings.TrimSpace(c.Query("date")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, day)
}

// @Summary      Rates For Date
// @Tags         rates
// @Produce      json
// @Param        date  path  string  true  "Day (YYYY-MM-DD)"
// @Success      200  {object}  DataResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /rates/{date} [get]
func (s *Server) GetRatesForDate(c *gin.Context) {
	day, err := s.rateSvc.RatesForDate(c.Request.Context(), strings.TrimSpace(c.Param("date")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, day)
}
