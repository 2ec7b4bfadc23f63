package handlers

import (
	"context"

	"github.com/dhima/datman/internal/api/response"
	"github.com/dhima/datman/internal/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueryRunner executes raw SQL.
type QueryRunner interface {
	Execute(ctx context.Context, query string) ([][]any, error)
}

// QueryHandler exposes raw query execution. It is disabled unless explicitly enabled.
type QueryHandler struct {
	logger  logging.Logger
	runner  QueryRunner
	enabled bool
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(logger logging.Logger, runner QueryRunner, enabled bool) *QueryHandler {
	return &QueryHandler{
		logger:  logging.OrNoOp(logger).With(zap.String("handler", "query")),
		runner:  runner,
		enabled: enabled,
	}
}

// QueryRequest is a raw SQL statement. It is sent to the database unmodified.
type QueryRequest struct {
	SQL string `json:"sql" example:"SELECT id, name FROM users LIMIT 10"`
} // @name QueryRequest

// QueryResponse holds the result rows as positional tuples.
type QueryResponse struct {
	Rows [][]any `json:"rows"`
} // @name QueryResponse

// Execute godoc
// @Summary Execute a raw query
// @Description Runs SQL as-is and returns every row. Disabled unless ALLOW_RAW_QUERY is set.
// @Tags Query
// @Accept json
// @Produce json
// @Param body body QueryRequest true "SQL statement"
// @Success 200 {object} QueryResponse
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 403 {object} response.ErrorResponse "Raw queries disabled"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /query [post]
func (h *QueryHandler) Execute(c *gin.Context) {
	if !h.enabled {
		response.Forbidden(c, "raw queries are disabled")
		return
	}

	var req QueryRequest
	if !bindBody(c, querySchema, &req) {
		return
	}

	rows, err := h.runner.Execute(c.Request.Context(), req.SQL)
	if handleClientError(c, h.logger, err, "execute query") {
		return
	}
	h.logger.Info("raw query executed",
		zap.Int("rows", len(rows)),
		zap.String("request_id", response.GetRequestID(c)),
	)
	response.OK(c, QueryResponse{Rows: rows})
}
