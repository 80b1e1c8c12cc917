package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type ReadinessState string

const (
	ReadinessStateReady    ReadinessState = "ready"
	ReadinessStateNotReady ReadinessState = "not_ready"
	ReadinessStateOptional ReadinessState = "optional"
)

type ReadinessIssue struct {
	ID       string            `json:"id"`
	Status   ReadinessState    `json:"status"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

type ReadinessResponse struct {
	SystemState ReadinessState   `json:"system_state"`
	Version     string           `json:"version,omitempty"`
	Issues      []ReadinessIssue `json:"issues"`
}

// @Summary      Health
// @Description  Readiness of the service and its dependencies
// @Tags         system
// @Produce      json
// @Success      200  {object}  ReadinessResponse
// @Failure      503  {object}  ReadinessResponse
// @Router       /health [get]
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := ReadinessResponse{SystemState: ReadinessStateReady, Version: s.cfg.AppVersion}

	// required
	if err := s.pingDatabase(ctx); err != nil {
		resp.SystemState = ReadinessStateNotReady
		resp.Issues = append(resp.Issues, ReadinessIssue{
			ID:       "database_reachable",
			Status:   ReadinessStateNotReady,
			Evidence: map[string]string{"error": err.Error()},
		})
	} else {
		resp.Issues = append(resp.Issues, ReadinessIssue{ID: "database_reachable", Status: ReadinessStateReady})
	}

	// optional
	switch {
	case s.redis == nil:
		resp.Issues = append(resp.Issues, ReadinessIssue{
			ID:       "rate_cache_reachable",
			Status:   ReadinessStateOptional,
			Evidence: map[string]string{"redis": "disabled"},
		})
	case s.redis.Ping(ctx).Err() != nil:
		resp.Issues = append(resp.Issues, ReadinessIssue{ID: "rate_cache_reachable", Status: ReadinessStateOptional})
	default:
		resp.Issues = append(resp.Issues, ReadinessIssue{ID: "rate_cache_reachable", Status: ReadinessStateReady})
	}

	if resp.SystemState == ReadinessStateReady {
		day, err := s.rateSvc.LatestRates(ctx, "")
		if err != nil {
			resp.Issues = append(resp.Issues, ReadinessIssue{ID: "rates_recorded", Status: ReadinessStateOptional})
		} else {
			resp.Issues = append(resp.Issues, ReadinessIssue{
				ID:       "rates_recorded",
				Status:   ReadinessStateReady,
				Evidence: map[string]string{"latest_date": day.Date},
			})
		}
	}

	status := http.StatusOK
	if resp.SystemState != ReadinessStateReady {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (s *Server) pingDatabase(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
