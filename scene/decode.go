package scene

import (
	"bytes"
	"context"
	"image"
	"sync/atomic"
)

// DecodeTask is an asynchronous image decode bound to a single node
// slot. It replaces fire-and-forget decoding: each request is its own
// task, cancellable by dropping it, and its result is delivered through
// the callback registered at creation.
//
// The result is applied only if the target slot still wants it: the
// task compares the node's current handle against the handle it was
// started for, so a superseded decode is discarded instead of
// clobbering newer content.
type DecodeTask struct {
	cancel context.CancelFunc
	done   chan struct{}

	err atomic.Pointer[error]
}

// DecodeInto starts decoding data into the arena and, on success,
// delivers the new handle via apply on the decoding goroutine.
//
// current returns the node's current handle; if it no longer equals
// wants when the decode finishes, the result is released and dropped.
// Cancel the task (or its parent context) to abandon the work.
func DecodeInto(ctx context.Context, arena *Arena, data []byte, wants ImageID, current func() ImageID, apply func(ImageID)) *DecodeTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &DecodeTask{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)

		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			t.err.Store(&err)
			stageLogger().Warn("image decode failed", "err", err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		id := arena.Acquire(img)
		// Identity check: a superseded request must never apply.
		if current() != wants || ctx.Err() != nil {
			arena.Release(id)
			return
		}
		apply(id)
	}()

	return t
}

// Cancel abandons the task. The decode goroutine stops applying its
// result; any already-acquired handle is released.
func (t *DecodeTask) Cancel() { t.cancel() }

// Wait blocks until the task finishes or is cancelled, and returns the
// decode error, if any.
func (t *DecodeTask) Wait() error {
	<-t.done
	if p := t.err.Load(); p != nil {
		return *p
	}
	return nil
}
