package stream

import (
	"context"
	"io"
	"strings"
	"sync"
)

// dataMarker prefixes frames that carry a text delta. Frames without it
// (terminators like "event: done", server errors) produce no delta.
const dataMarker = "data:"

// Decoder turns a live response body into ordered text deltas. Deltas are
// delivered from a single goroutine, strictly in frame order, never
// concurrently. A Decoder drives one stream and is not reusable.
type Decoder struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool

	finishOnce sync.Once
}

// NewDecoder returns a decoder whose Stop tears down the underlying
// transport through cancel. cancel may be nil.
func NewDecoder(cancel context.CancelFunc) *Decoder {
	return &Decoder{cancel: cancel}
}

// Run consumes body until end-of-stream, stop, or a transport error. Each
// data frame's payload (the text after the marker) is passed to onDelta in
// arrival order. onFinish is invoked exactly once, after the last delta,
// on every exit path, so callers can always release their sending state.
// Delta loss on a transport error is accepted; retrying is caller policy.
func (d *Decoder) Run(body io.Reader, onDelta func(delta string), onFinish func()) error {
	defer d.finish(onFinish)

	fr := NewFrameReader(body)
	for {
		frame, err := fr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if d.isStopped() {
				// Teardown aborts the read; not a failure.
				return nil
			}
			return err
		}
		payload, ok := strings.CutPrefix(frame, dataMarker)
		if !ok {
			continue
		}
		if !d.deliver(payload, onDelta) {
			return nil
		}
	}
}

// deliver invokes onDelta unless the decoder has been stopped. The callback
// runs under the same mutex Stop takes, so once Stop returns no further
// delta can be observed, even for frames already buffered.
func (d *Decoder) deliver(delta string, onDelta func(string)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	if onDelta != nil {
		onDelta(delta)
	}
	return true
}

// Stop requests cooperative cancellation. When it returns, no further
// onDelta call will be made; onFinish still fires so UI state converges.
func (d *Decoder) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Decoder) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

func (d *Decoder) finish(onFinish func()) {
	d.finishOnce.Do(func() {
		if onFinish != nil {
			onFinish()
		}
	})
}
