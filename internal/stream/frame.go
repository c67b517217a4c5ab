package stream

import (
	"bytes"
	"fmt"
	"io"
)

// frameState tracks where the reader is in the framing protocol.
type frameState int

const (
	stateAccumulating frameState = iota // collecting bytes, no complete frame yet
	stateFrameReady                     // at least one complete frame is queued
	stateEnded                          // source exhausted, only queued frames remain
)

// frameDelim separates frames on the wire. A frame is complete only once its
// terminating blank line has been seen.
var frameDelim = []byte("\n\n")

// FrameReader reconstructs blank-line-delimited event frames from a byte
// stream. Chunk boundaries of the underlying reader carry no meaning: a frame
// split across reads is retained and completed by later reads, and the same
// byte stream yields the same frames no matter how it is chunked.
type FrameReader struct {
	r       io.Reader
	buf     bytes.Buffer
	pending []string
	state   frameState
	scratch []byte
}

// NewFrameReader wraps r for frame extraction.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:       r,
		scratch: make([]byte, 4096),
	}
}

// Next returns the next complete frame without its terminating blank line.
// It returns io.EOF once the source is exhausted and no complete frames
// remain; an unterminated trailing partial frame is discarded.
func (fr *FrameReader) Next() (string, error) {
	for {
		if len(fr.pending) > 0 {
			frame := fr.pending[0]
			fr.pending = fr.pending[1:]
			if len(fr.pending) == 0 && fr.state == stateFrameReady {
				fr.state = stateAccumulating
			}
			return frame, nil
		}
		if fr.state == stateEnded {
			return "", io.EOF
		}

		n, err := fr.r.Read(fr.scratch)
		if n > 0 {
			fr.buf.Write(fr.scratch[:n])
			fr.splitFrames()
		}
		if err == io.EOF {
			// Trailing bytes never saw their blank line; they produce
			// no frame.
			fr.buf.Reset()
			fr.state = stateEnded
			if len(fr.pending) > 0 {
				continue
			}
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("read event stream: %w", err)
		}
	}
}

// splitFrames moves every complete frame from the accumulation buffer into
// the pending queue, keeping the unterminated remainder buffered.
func (fr *FrameReader) splitFrames() {
	for {
		data := fr.buf.Bytes()
		idx := bytes.Index(data, frameDelim)
		if idx < 0 {
			return
		}
		fr.pending = append(fr.pending, string(data[:idx]))
		fr.buf.Next(idx + len(frameDelim))
		fr.state = stateFrameReady
	}
}
