// Package objectstore puts and gets single objects on an S3-compatible endpoint.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/logging"
	"github.com/dhima/datman/pkg/config"
	"github.com/dhima/datman/pkg/dataerr"
	"go.uber.org/zap"
)

const (
	// DefaultContentType is used when PutObject is given no content type.
	DefaultContentType = "application/octet-stream"
	// DefaultRegion is used when the params carry no region.
	DefaultRegion = "us-east-1"
)

var (
	// ErrNotConnected is returned by operations called before Connect.
	ErrNotConnected = errors.New("object storage is not connected")
	// ErrObjectNotFound marks a get of a missing bucket or key.
	ErrObjectNotFound = errors.New("object not found")
)

// API is the subset of the S3 client used here.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// APIFactory builds an API from connection params.
type APIFactory func(ctx context.Context, p config.Params) (API, error)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger; nil keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.Named("objectstore")
		}
	}
}

// WithAPIFactory replaces the aws-sdk-go-v2 client construction.
func WithAPIFactory(f APIFactory) Option {
	return func(c *Client) { c.factory = f }
}

// Client holds one S3 connection handle.
type Client struct {
	mu      sync.RWMutex
	api     API
	factory APIFactory
	logger  *zap.Logger
}

// New creates a client that is not yet connected.
func New(opts ...Option) *Client {
	c := &Client{factory: NewS3API, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect builds the S3 handle from params, given as JSON or a mapping. The endpoint is
// not contacted until the first request.
func (c *Client) Connect(ctx context.Context, params any) error {
	const op = "connect"

	p, err := config.ParseParams(params)
	if err != nil {
		c.logger.Warn("invalid connection params", zap.Error(err))
		return err
	}
	api, err := c.factory(ctx, p)
	if err != nil {
		c.logger.Error("failed to build s3 client", zap.Error(err))
		return dataerr.New(dataerr.KindInvalidArgument, op, err)
	}

	c.mu.Lock()
	c.api = api
	c.mu.Unlock()

	endpoint, _ := p.String("endpoint")
	c.logger.Info("object storage configured", zap.String("endpoint", endpoint))
	return nil
}

func (c *Client) handle(op string) (API, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.api == nil {
		return nil, dataerr.Driver(op, ErrNotConnected)
	}
	return c.api, nil
}

// PutObject uploads data as a single object in one request.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data Payload, contentType string) error {
	const op = "put object"

	api, err := c.handle(op)
	if err != nil {
		c.logger.Error("put object failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return err
	}
	if data == nil {
		err := dataerr.InvalidShape(op, "payload is nil")
		c.logger.Warn("put object rejected", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return err
	}
	body, size, err := data.open()
	if err != nil {
		err := dataerr.InvalidShape(op, "%v", err)
		c.logger.Warn("put object rejected", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return err
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	_, err = api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		c.logger.Error("put object failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return dataerr.Driver(op, fmt.Errorf("put %s/%s: %w", bucket, key, err))
	}

	c.logger.Debug("object stored",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("size", size),
		zap.String("content_type", contentType))
	return nil
}

// Object is a downloaded object. Size is -1 when the store did not report it.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Close closes the object body.
func (o *Object) Close() error {
	return o.Body.Close()
}

// GetObject returns an object with the content type it was stored with. The caller closes it.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	const op = "get object"

	api, err := c.handle(op)
	if err != nil {
		c.logger.Error("get object failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return nil, err
	}

	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.logger.Error("get object failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		if isNotFound(err) {
			err = fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
		return nil, dataerr.Driver(op, fmt.Errorf("get %s/%s: %w", bucket, key, err))
	}
	obj := &Object{Body: out.Body, ContentType: aws.ToString(out.ContentType), Size: -1}
	if obj.ContentType == "" {
		obj.ContentType = DefaultContentType
	}
	if out.ContentLength != nil {
		obj.Size = *out.ContentLength
	}
	return obj, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

// NewS3API builds an aws-sdk-go-v2 S3 client with path-style addressing. Keys: endpoint,
// access_key, secret_key, session_token, region, secure. Without an access key the default
// AWS credential chain is used.
func NewS3API(ctx context.Context, p config.Params) (API, error) {
	region, ok := p.String("region")
	if !ok || region == "" {
		region = DefaultRegion
	}
	var endpoint *string
	if ep, ok := p.String("endpoint"); ok && ep != "" {
		endpoint = aws.String(endpointURL(ep, p.Bool("secure", true)))
	}

	accessKey, _ := p.String("access_key")
	secretKey, _ := p.String("secret_key")
	if accessKey != "" || secretKey != "" {
		token, _ := p.String("session_token")
		return s3.New(s3.Options{
			Region:       region,
			Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, token),
			BaseEndpoint: endpoint,
			UsePathStyle: true,
			Logger:       logging.Nop{},
		}), nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		o.UsePathStyle = true
		o.Logger = logging.Nop{}
	}), nil
}

// endpointURL adds a scheme to a bare host[:port] endpoint.
func endpointURL(endpoint string, secure bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if secure {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
