package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dhima/datman/internal/api/response"
	"github.com/dhima/datman/internal/logging"
	"github.com/dhima/datman/pkg/objectstore"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxObjectSize bounds an uploaded object; uploads are single requests.
const MaxObjectSize = 64 << 20

// ObjectStore is the object storage surface used by the object endpoints.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, data objectstore.Payload, contentType string) error
	GetObject(ctx context.Context, bucket, key string) (*objectstore.Object, error)
}

// ObjectHandler handles single-object uploads and downloads.
type ObjectHandler struct {
	logger logging.Logger
	store  ObjectStore
}

// NewObjectHandler creates an object handler.
func NewObjectHandler(logger logging.Logger, store ObjectStore) *ObjectHandler {
	return &ObjectHandler{
		logger: logging.OrNoOp(logger).With(zap.String("handler", "objects")),
		store:  store,
	}
}

// ObjectResponse describes a stored object.
type ObjectResponse struct {
	Bucket string `json:"bucket" example:"raw"`
	Key    string `json:"key" example:"2025/01/export.csv"`
	Size   int64  `json:"size" example:"1024"`
} // @name ObjectResponse

// PutObject godoc
// @Summary Upload an object
// @Description Stores the request body as a single object. The Content-Type header is kept.
// @Tags Objects
// @Accept octet-stream
// @Produce json
// @Param bucket path string true "Bucket name"
// @Param key path string true "Object key"
// @Success 201 {object} ObjectResponse
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 413 {object} response.ErrorResponse "Object too large"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /objects/{bucket}/{key} [put]
func (h *ObjectHandler) PutObject(c *gin.Context) {
	bucket, key, ok := objectPath(c)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxObjectSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RequestEntityTooLarge(c, "object too large", MaxObjectSize)
			return
		}
		response.BadRequest(c, "unreadable request body", err.Error())
		return
	}

	err = h.store.PutObject(c.Request.Context(), bucket, key, objectstore.Buffer(bytes.NewReader(data)), c.GetHeader("Content-Type"))
	if handleClientError(c, h.logger, err, "put object") {
		return
	}
	h.logger.Info("object stored",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("size", len(data)),
		zap.String("request_id", response.GetRequestID(c)),
	)
	response.Created(c, ObjectResponse{Bucket: bucket, Key: key, Size: int64(len(data))}, "object stored")
}

// GetObject godoc
// @Summary Download an object
// @Description Streams the object body with the content type it was stored with.
// @Tags Objects
// @Produce octet-stream
// @Param bucket path string true "Bucket name"
// @Param key path string true "Object key"
// @Success 200 {file} binary
// @Failure 404 {object} response.ErrorResponse "Object not found"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /objects/{bucket}/{key} [get]
func (h *ObjectHandler) GetObject(c *gin.Context) {
	bucket, key, ok := objectPath(c)
	if !ok {
		return
	}

	obj, err := h.store.GetObject(c.Request.Context(), bucket, key)
	if handleClientError(c, h.logger, err, "get object") {
		return
	}
	defer obj.Close()

	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj.Body, nil)
}

func objectPath(c *gin.Context) (string, string, bool) {
	bucket := c.Param("bucket")
	key := strings.TrimPrefix(c.Param("key"), "/")
	if bucket == "" || key == "" {
		response.BadRequest(c, "bucket and key are required", nil)
		return "", "", false
	}
	return bucket, key, true
}
