package handlers

import (
	"context"
	"strings"

	"github.com/dhima/datman/internal/api/response"
	"github.com/dhima/datman/internal/logging"
	"github.com/dhima/datman/pkg/sqldb"
	"github.com/dhima/datman/platform/events"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TableStore is the database surface used by the table endpoints.
type TableStore interface {
	InsertBatch(ctx context.Context, data sqldb.Batch, table string, pageSize int) (int64, error)
	UpdateBatch(ctx context.Context, data sqldb.Batch, setColumns, whereColumns []string, table string, pageSize int) (int64, error)
	DeleteBatch(ctx context.Context, data sqldb.Batch, table string, pageSize int) (int64, error)
	FindDuplicateRows(ctx context.Context, table string, partition []string) (*sqldb.Frame, error)
	DeleteDuplicateRows(ctx context.Context, table string, partition []string) (int64, error)
}

// TableHandler handles batch mutations and duplicate-row maintenance on tables.
type TableHandler struct {
	logger          logging.Logger
	store           TableStore
	defaultPageSize int
}

// NewTableHandler creates a table handler. A non-positive defaultPageSize leaves paging to the client.
func NewTableHandler(logger logging.Logger, store TableStore, defaultPageSize int) *TableHandler {
	return &TableHandler{
		logger:          logging.OrNoOp(logger).With(zap.String("handler", "tables")),
		store:           store,
		defaultPageSize: defaultPageSize,
	}
}

// InsertRowsRequest carries either keyed records or a columnar frame.
type InsertRowsRequest struct {
	Records  []map[string]any `json:"records,omitempty"`
	Columns  []string         `json:"columns,omitempty"`
	Rows     [][]any          `json:"rows,omitempty"`
	PageSize int              `json:"page_size,omitempty" example:"100"`
} // @name InsertRowsRequest

// UpdateRowsRequest updates the rows matching Where with the values of Set.
type UpdateRowsRequest struct {
	Records  []map[string]any `json:"records"`
	Set      []string         `json:"set" example:"name"`
	Where    []string         `json:"where" example:"id"`
	PageSize int              `json:"page_size,omitempty" example:"100"`
} // @name UpdateRowsRequest

// DeleteRowsRequest lists single-key records to delete.
type DeleteRowsRequest struct {
	Records  []map[string]any `json:"records"`
	PageSize int              `json:"page_size,omitempty" example:"100"`
} // @name DeleteRowsRequest

// MutationResult reports the rows affected by a mutation.
type MutationResult struct {
	Table        string           `json:"table" example:"users"`
	Operation    events.Operation `json:"operation" example:"insert"`
	RowsAffected int64            `json:"rows_affected" example:"42"`
} // @name MutationResult

// InsertRows godoc
// @Summary Insert rows in batches
// @Description Inserts records (or a columns/rows frame) into a table, one statement per page.
// @Tags Tables
// @Accept json
// @Produce json
// @Param table path string true "Table name"
// @Param body body InsertRowsRequest true "Rows to insert"
// @Success 200 {object} MutationResult
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /tables/{table}/rows [post]
func (h *TableHandler) InsertRows(c *gin.Context) {
	var req InsertRowsRequest
	if !bindBody(c, insertRowsSchema, &req) {
		return
	}

	var data sqldb.Batch = toRecords(req.Records)
	if req.Columns != nil {
		frame := sqldb.Frame{Columns: req.Columns, Rows: make([][]any, len(req.Rows))}
		for i, row := range req.Rows {
			vals := make([]any, len(row))
			for j, v := range row {
				vals[j] = columnValue(v)
			}
			frame.Rows[i] = vals
		}
		data = frame
	}

	table := c.Param("table")
	n, err := h.store.InsertBatch(c.Request.Context(), data, table, h.pageSize(req.PageSize))
	if handleClientError(c, h.logger, err, "insert rows") {
		return
	}
	h.respond(c, table, events.OperationInsert, n)
}

// UpdateRows godoc
// @Summary Update rows in batches
// @Description Updates the set columns of the rows matching the where columns of each record.
// @Tags Tables
// @Accept json
// @Produce json
// @Param table path string true "Table name"
// @Param body body UpdateRowsRequest true "Rows to update"
// @Success 200 {object} MutationResult
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /tables/{table}/rows [put]
func (h *TableHandler) UpdateRows(c *gin.Context) {
	var req UpdateRowsRequest
	if !bindBody(c, updateRowsSchema, &req) {
		return
	}

	table := c.Param("table")
	n, err := h.store.UpdateBatch(c.Request.Context(), toRecords(req.Records), req.Set, req.Where, table, h.pageSize(req.PageSize))
	if handleClientError(c, h.logger, err, "update rows") {
		return
	}
	h.respond(c, table, events.OperationUpdate, n)
}

// DeleteRows godoc
// @Summary Delete rows by key
// @Description Deletes the rows whose key matches a record. Each record holds exactly one field.
// @Tags Tables
// @Accept json
// @Produce json
// @Param table path string true "Table name"
// @Param body body DeleteRowsRequest true "Keys to delete"
// @Success 200 {object} MutationResult
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /tables/{table}/rows [delete]
func (h *TableHandler) DeleteRows(c *gin.Context) {
	var req DeleteRowsRequest
	if !bindBody(c, deleteRowsSchema, &req) {
		return
	}

	table := c.Param("table")
	n, err := h.store.DeleteBatch(c.Request.Context(), toRecords(req.Records), table, h.pageSize(req.PageSize))
	if handleClientError(c, h.logger, err, "delete rows") {
		return
	}
	h.respond(c, table, events.OperationDelete, n)
}

// FindDuplicates godoc
// @Summary Find duplicate rows
// @Description Returns the rows sharing their partition column values with another row.
// @Tags Tables
// @Produce json
// @Param table path string true "Table name"
// @Param partition query string true "Comma separated partition columns"
// @Success 200 {object} sqldb.Frame
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /tables/{table}/duplicates [get]
func (h *TableHandler) FindDuplicates(c *gin.Context) {
	partition, ok := partitionColumns(c)
	if !ok {
		return
	}

	frame, err := h.store.FindDuplicateRows(c.Request.Context(), c.Param("table"), partition)
	if handleClientError(c, h.logger, err, "find duplicates") {
		return
	}
	response.OK(c, frame)
}

// DeleteDuplicates godoc
// @Summary Delete duplicate rows
// @Description Keeps one row per partition and deletes the others. Irreversible.
// @Tags Tables
// @Produce json
// @Param table path string true "Table name"
// @Param partition query string true "Comma separated partition columns"
// @Success 200 {object} MutationResult
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /tables/{table}/duplicates [delete]
func (h *TableHandler) DeleteDuplicates(c *gin.Context) {
	partition, ok := partitionColumns(c)
	if !ok {
		return
	}

	table := c.Param("table")
	n, err := h.store.DeleteDuplicateRows(c.Request.Context(), table, partition)
	if handleClientError(c, h.logger, err, "delete duplicates") {
		return
	}
	h.respond(c, table, events.OperationDeleteDuplicates, n)
}

func (h *TableHandler) pageSize(requested int) int {
	if requested > 0 {
		return requested
	}
	return h.defaultPageSize
}

func (h *TableHandler) respond(c *gin.Context, table string, op events.Operation, n int64) {
	h.logger.Info("table mutated",
		zap.String("table", table),
		zap.String("operation", string(op)),
		zap.Int64("rows", n),
		zap.String("request_id", response.GetRequestID(c)),
	)
	response.OK(c, MutationResult{Table: table, Operation: op, RowsAffected: n})
}

func partitionColumns(c *gin.Context) ([]string, bool) {
	var cols []string
	for _, col := range strings.Split(c.Query("partition"), ",") {
		if col = strings.TrimSpace(col); col != "" {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		response.BadRequest(c, "partition query parameter is required", nil)
		return nil, false
	}
	return cols, true
}
