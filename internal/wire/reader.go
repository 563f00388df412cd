package wire

import (
	"errors"
	"fmt"
	"io"
)

// readChunk is how many bytes one underlying read may pull in at once.
const readChunk = 64 * 1024

// ErrClosed reports that the peer closed the connection before a full
// frame (or requested byte count) arrived.
var ErrClosed = errors.New("connection closed")

// Reader turns a byte-oriented stream into a blocking "read exactly N
// bytes" interface. It keeps a single growing buffer and refills it in
// readChunk-sized pulls. No timeouts are applied at this layer.
type Reader struct {
	src io.Reader
	buf []byte
}

func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// ReadFull blocks until n bytes are available and returns them. The
// returned slice stays valid until the next ReadFull call. A peer close
// or transport error before n bytes arrive yields ErrClosed.
func (r *Reader) ReadFull(n int) ([]byte, error) {
	for len(r.buf) < n {
		chunk := make([]byte, readChunk)
		got, err := r.src.Read(chunk)
		if got > 0 {
			r.buf = append(r.buf, chunk[:got]...)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
	}
	part := r.buf[:n:n]
	r.buf = r.buf[n:]
	return part, nil
}
