package handlers

import (
	"github.com/dhima/datman/internal/api/response"
	"github.com/dhima/datman/internal/logging"
	"github.com/dhima/datman/pkg/sqldb"
	"github.com/gin-gonic/gin"
)

// StatsSource reports database client counters.
type StatsSource interface {
	Stats() sqldb.Stats
}

// MetricsHandler handles metrics requests.
type MetricsHandler struct {
	logger logging.Logger
	source StatsSource
}

// NewMetricsHandler creates a new metrics handler. A nil source reports zeros.
func NewMetricsHandler(logger logging.Logger, source StatsSource) *MetricsHandler {
	return &MetricsHandler{logger: logging.OrNoOp(logger), source: source}
}

// MetricsResponse represents the metrics response.
type MetricsResponse struct {
	RowsInserted      int64 `json:"rows_inserted" example:"1250"`
	RowsUpdated       int64 `json:"rows_updated" example:"45"`
	RowsDeleted       int64 `json:"rows_deleted" example:"12"`
	DuplicatesRemoved int64 `json:"duplicates_removed" example:"3"`
	FailedOperations  int64 `json:"failed_operations" example:"1"`
} // @name MetricsResponse

// Metrics godoc
// @Summary Get client metrics
// @Description Returns lifetime counters of the database client
// @Tags System
// @Produce json
// @Success 200 {object} MetricsResponse
// @Router /metrics [get]
func (h *MetricsHandler) Metrics(c *gin.Context) {
	var s sqldb.Stats
	if h.source != nil {
		s = h.source.Stats()
	}
	response.OK(c, MetricsResponse{
		RowsInserted:      s.RowsInserted,
		RowsUpdated:       s.RowsUpdated,
		RowsDeleted:       s.RowsDeleted,
		DuplicatesRemoved: s.DuplicatesRemoved,
		FailedOperations:  s.FailedOperations,
	})
}
