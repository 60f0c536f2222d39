package stream

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Framing selects how logical units are delimited on the wire.
type Framing int

const (
	// FramingNDJSON treats every non-empty line as one JSON event.
	FramingNDJSON Framing = iota
	// FramingSSE expects "data: {json}" lines and a [DONE] sentinel.
	FramingSSE
)

// DoneSentinel marks graceful end-of-stream in the SSE framing.
const DoneSentinel = "[DONE]"

// LineDecoder reassembles complete textual lines from a byte stream whose
// chunk boundaries are arbitrary. A partial line is buffered across reads and
// flushed exactly once when the stream ends. The only fatal condition is a
// failed read on the underlying source.
type LineDecoder struct {
	r       io.Reader
	buf     []byte
	partial []byte
	lines   []string
	eof     bool
}

// NewLineDecoder creates a decoder over r.
func NewLineDecoder(r io.Reader) *LineDecoder {
	return &LineDecoder{
		r:   r,
		buf: make([]byte, 4096),
	}
}

// Next returns the next complete line, without its terminator. It returns
// io.EOF once the stream is exhausted, after any unterminated trailing
// content has been handed out as a final line.
func (d *LineDecoder) Next() (string, error) {
	for len(d.lines) == 0 {
		if d.eof {
			if len(d.partial) > 0 {
				line := string(trimCR(d.partial))
				d.partial = nil
				return line, nil
			}
			return "", io.EOF
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.split(d.buf[:n])
		}
		if err == io.EOF {
			d.eof = true
		} else if err != nil {
			return "", fmt.Errorf("failed to read stream: %w", err)
		}
	}

	line := d.lines[0]
	d.lines = d.lines[1:]
	return line, nil
}

func (d *LineDecoder) split(chunk []byte) {
	for {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.partial = append(d.partial, chunk...)
			return
		}
		line := append(d.partial, chunk[:i]...)
		d.partial = nil
		d.lines = append(d.lines, string(trimCR(line)))
		chunk = chunk[i+1:]
	}
}

func trimCR(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}
	return line
}

// Reader yields raw event payloads from a framed stream. In NDJSON mode
// every non-empty line is a payload; in SSE mode only "data:" lines count
// and the [DONE] sentinel ends the stream.
type Reader struct {
	dec     *LineDecoder
	framing Framing
}

// NewReader creates a framing-aware payload reader over r.
func NewReader(r io.Reader, framing Framing) *Reader {
	return &Reader{
		dec:     NewLineDecoder(r),
		framing: framing,
	}
}

// Next returns the next event payload, or io.EOF at end-of-stream.
func (r *Reader) Next() (string, error) {
	for {
		line, err := r.dec.Next()
		if err != nil {
			return "", err
		}
		if line == "" {
			continue
		}

		if r.framing == FramingSSE {
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == DoneSentinel {
				return "", io.EOF
			}
			return data, nil
		}

		return line, nil
	}
}
