package fakes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type storedObject struct {
	data        []byte
	contentType string
}

// FakeS3 is an in-memory object store implementing objectstore.API.
type FakeS3 struct {
	mu      sync.Mutex
	objects map[string]storedObject
	PutErr  error
	Puts    []s3.PutObjectInput
}

func NewFakeS3() *FakeS3 {
	return &FakeS3{objects: make(map[string]storedObject)}
}

func (f *FakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Puts = append(f.Puts, *in)
	if f.PutErr != nil {
		return nil, f.PutErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if n := aws.ToInt64(in.ContentLength); n != int64(len(data)) {
		return nil, fmt.Errorf("content length %d does not match body of %d bytes", n, len(data))
	}
	f.objects[objectKey(in.Bucket, in.Key)] = storedObject{data: data, contentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf("%x", len(data)))}, nil
}

func (f *FakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectKey(in.Bucket, in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
	}, nil
}

// Object returns the stored bytes and content type.
func (f *FakeS3) Object(bucket, key string) ([]byte, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectKey(&bucket, &key)]
	return obj.data, obj.contentType, ok
}

func objectKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}
