package deck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

const defaultChunkSize = 32 * 1024

// OSFileReader reads files from disk in chunks, reporting progress after each
// chunk and honouring cancellation between chunks.
type OSFileReader struct {
	ChunkSize int
}

func (r OSFileReader) ReadFile(ctx context.Context, name string, progress ProgressFunc) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	total := int64(-1)
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}

	chunk := r.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}

	var data []byte
	if total > 0 {
		data = make([]byte, 0, total)
	}
	buf := make([]byte, chunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := f.Read(buf)
		data = append(data, buf[:n]...)
		if n > 0 && progress != nil {
			progress(int64(len(data)), total)
		}
		if errors.Is(err, io.EOF) {
			return data, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
}
