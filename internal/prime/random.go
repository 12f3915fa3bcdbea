package prime

import (
	"context"
	"io"
)

// contextReader wraps a reader with context cancellation checks
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func newContextReader(ctx context.Context, r io.Reader) *contextReader {
	return &contextReader{ctx: ctx, reader: r}
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	// Read in small chunks so a cancelled context is noticed between them
	const chunkSize = 1024
	total := 0
	for total < len(p) {
		if err := cr.ctx.Err(); err != nil {
			return total, err
		}

		end := total + chunkSize
		if end > len(p) {
			end = len(p)
		}

		n, err := cr.reader.Read(p[total:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
