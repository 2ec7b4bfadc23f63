package handlers

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/dhima/datman/internal/api/response"
	"github.com/dhima/datman/internal/logging"
	"github.com/dhima/datman/pkg/dataerr"
	"github.com/dhima/datman/pkg/objectstore"
	"github.com/dhima/datman/pkg/sqldb"
	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

var (
	insertRowsSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"records":   {"type": "array", "items": {"type": "object"}},
			"columns":   {"type": "array", "items": {"type": "string"}},
			"rows":      {"type": "array", "items": {"type": "array"}},
			"page_size": {"type": "integer", "minimum": 0}
		},
		"oneOf": [
			{"required": ["records"]},
			{"required": ["columns", "rows"]}
		],
		"additionalProperties": false
	}`)

	updateRowsSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"records":   {"type": "array", "items": {"type": "object"}},
			"set":       {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"where":     {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"page_size": {"type": "integer", "minimum": 0}
		},
		"required": ["records", "set", "where"],
		"additionalProperties": false
	}`)

	deleteRowsSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"records":   {"type": "array", "items": {"type": "object", "minProperties": 1, "maxProperties": 1}},
			"page_size": {"type": "integer", "minimum": 0}
		},
		"required": ["records"],
		"additionalProperties": false
	}`)

	querySchema = mustSchema(`{
		"type": "object",
		"properties": {
			"sql": {"type": "string", "minLength": 1}
		},
		"required": ["sql"],
		"additionalProperties": false
	}`)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(err)
	}
	return schema
}

// bindBody validates the request body against schema and decodes it into dst.
// It writes the error response and returns false when the body is rejected.
func bindBody(c *gin.Context, schema *gojsonschema.Schema, dst any) bool {
	raw, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "unreadable request body", err.Error())
		return false
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		response.BadRequest(c, "invalid request body", err.Error())
		return false
	}
	if !result.Valid() {
		details := make([]response.ValidationError, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, response.ValidationError{Field: e.Field(), Message: e.Description()})
		}
		response.ValidationErrors(c, details)
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		response.BadRequest(c, "invalid request body", err.Error())
		return false
	}
	return true
}

// columnValue converts a decoded JSON value into a bindable column value: integral
// numbers become int64, other numbers float64, nested documents their JSON text.
func columnValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(b)
	}
	return v
}

func toRecords(in []map[string]any) sqldb.Records {
	out := make(sqldb.Records, len(in))
	for i, m := range in {
		rec := make(sqldb.Record, len(m))
		for k, v := range m {
			rec[k] = columnValue(v)
		}
		out[i] = rec
	}
	return out
}

// handleClientError maps a client error onto an HTTP response. It returns false when err is nil.
func handleClientError(c *gin.Context, logger logging.Logger, err error, operation string) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, objectstore.ErrObjectNotFound):
		response.NotFound(c, "object not found")
	case errors.Is(err, sqldb.ErrNotConnected), errors.Is(err, objectstore.ErrNotConnected):
		response.ServiceUnavailable(c, "backend not connected")
	case errors.Is(err, dataerr.ErrInvalidArgument),
		errors.Is(err, dataerr.ErrInvalidShape),
		errors.Is(err, dataerr.ErrValidation):
		logger.Warn(operation+" rejected",
			zap.Error(err),
			zap.String("request_id", response.GetRequestID(c)),
		)
		response.BadRequest(c, dataerr.KindOf(err).String(), err.Error())
	default:
		logger.Error(operation+" failed",
			zap.Error(err),
			zap.String("request_id", response.GetRequestID(c)),
		)
		response.InternalServerError(c, "internal server error")
	}
	return true
}
