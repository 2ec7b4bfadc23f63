package objectstore

import (
	"bytes"
	"fmt"
	"io"
)

// Payload is the content of a single object: Bytes or Buffer.
type Payload interface {
	// open returns a reader positioned at the start of the content and its length.
	open() (io.Reader, int64, error)
}

// Bytes is an in-memory payload.
type Bytes []byte

func (b Bytes) open() (io.Reader, int64, error) {
	return bytes.NewReader(b), int64(len(b)), nil
}

// Buffer wraps a seekable reader. The whole content is uploaded regardless of the
// reader's current position.
func Buffer(rs io.ReadSeeker) Payload {
	return buffer{rs}
}

type buffer struct {
	rs io.ReadSeeker
}

func (b buffer) open() (io.Reader, int64, error) {
	if b.rs == nil {
		return nil, 0, fmt.Errorf("buffer is nil")
	}
	size, err := b.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("measure buffer: %w", err)
	}
	if _, err := b.rs.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("rewind buffer: %w", err)
	}
	return b.rs, size, nil
}
