package websocket

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// deflateTrailer is the 4-byte sync-flush marker that [flate.Writer]
// emits after Flush. RFC 7692 (permessage-deflate) requires senders to
// strip it and receivers to re-append it before inflating.
var deflateTrailer = [4]byte{0x00, 0x00, 0xff, 0xff}

// deflater compresses one message at a time with no context takeover:
// spec.md §4.3 requires each message to be compressed independently,
// so a fresh [flate.Writer] is created per call rather than reused
// across messages.
//
// The standard library's compress/flate is the only raw-DEFLATE
// implementation available anywhere in the retrieval pack (no example
// repo vendors a third-party deflate codec); see DESIGN.md.
type deflater struct {
	level int
}

func newDeflater(level int) *deflater {
	if level == 0 {
		level = flate.DefaultCompression
	}
	return &deflater{level: level}
}

// compress implements spec.md §4.3's compress operation.
func (d *deflater) compress(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, d.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create deflate writer: %w", err)
	}
	if _, err := fw.Write(p); err != nil {
		return nil, fmt.Errorf("failed to deflate payload: %w", err)
	}
	if err := fw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush deflate stream: %w", err)
	}

	out := buf.Bytes()
	if !bytes.HasSuffix(out, deflateTrailer[:]) {
		return nil, fmt.Errorf("%w: deflate stream missing sync-flush trailer", ErrProtocolError)
	}
	return out[:len(out)-len(deflateTrailer)], nil
}

// inflater decompresses one message at a time; see [deflater].
type inflater struct{}

func newInflater() *inflater { return &inflater{} }

// decompress implements spec.md §4.3's decompress operation.
func (in *inflater) decompress(p []byte, limit int64) ([]byte, error) {
	buf := make([]byte, 0, len(p)+len(deflateTrailer)+5)
	buf = append(buf, p...)
	buf = append(buf, deflateTrailer[:]...)
	// An empty final stored block ends the stream, so the reader reports
	// io.EOF rather than io.ErrUnexpectedEOF after the sync-flush block.
	buf = append(buf, 0x01, 0x00, 0x00, 0xff, 0xff)

	fr := flate.NewReader(bytes.NewReader(buf))
	defer fr.Close()

	out, err := io.ReadAll(io.LimitReader(fr, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: decompressed message exceeds limit", ErrMessageTooBig)
	}
	return out, nil
}
