package host

import (
	"context"
	"io"
	"sync"
	"time"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Response is one DIMSE response received for an operation.
type Response struct {
	Command *types.Message
	Data    []byte
}

// Operation is a request this side invoked. Responses are queued as they
// arrive; the operation ends exactly once, either with a final response or
// with an error.
type Operation struct {
	MessageID uint16
	ContextID byte
	Request   *types.Message

	host    *Host
	timeout time.Duration

	mu     sync.Mutex
	queue  []*Response
	final  *Response
	err    error
	done   bool
	timer  *time.Timer
	notify chan struct{}
	doneCh chan struct{}
}

func newOperation(h *Host, contextID byte, req *types.Message, timeout time.Duration) *Operation {
	return &Operation{
		ContextID: contextID,
		Request:   req,
		host:      h,
		timeout:   timeout,
		notify:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}
}

func (o *Operation) signal() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// deliver queues rsp and reports whether it ended the operation. It never
// blocks.
func (o *Operation) deliver(rsp *Response) bool {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, rsp)
	final := !rsp.Command.IsPending()
	if final {
		o.final = rsp
		o.finishLocked()
	} else if o.timer != nil {
		o.timer.Reset(o.timeout)
	}
	o.mu.Unlock()
	o.signal()
	return final
}

// fail ends the operation with err unless it already ended.
func (o *Operation) fail(err error) bool {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return false
	}
	o.err = err
	o.finishLocked()
	o.mu.Unlock()
	o.signal()
	return true
}

func (o *Operation) finishLocked() {
	o.done = true
	if o.timer != nil {
		o.timer.Stop()
	}
	close(o.doneCh)
}

func (o *Operation) startTimer() {
	if o.timeout <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return
	}
	o.timer = time.AfterFunc(o.timeout, func() {
		if o.fail(dicomerrors.NewTimeoutError(o.Request.CommandField.String()+" response", o.timeout)) {
			o.host.forget(o)
			o.host.logger().Warnw("DIMSE response timed out",
				"message_id", o.MessageID,
				"command_field", o.Request.CommandField.String(),
				"timeout", o.timeout)
		}
	})
}

// Next returns the responses in arrival order, pending ones included. After
// the final response it returns io.EOF. A failed operation first yields what
// was queued, then its error.
func (o *Operation) Next(ctx context.Context) (*Response, error) {
	for {
		o.mu.Lock()
		if len(o.queue) > 0 {
			rsp := o.queue[0]
			o.queue = o.queue[1:]
			o.mu.Unlock()
			return rsp, nil
		}
		if o.done {
			err := o.err
			o.mu.Unlock()
			if err == nil {
				return nil, io.EOF
			}
			return nil, err
		}
		o.mu.Unlock()

		select {
		case <-o.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Wait blocks until the operation ends and returns its final response.
// Pending responses stay available through Next.
func (o *Operation) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-o.doneCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return o.final, nil
}

// Done is closed when the operation ends.
func (o *Operation) Done() <-chan struct{} {
	return o.doneCh
}

// Err is the failure that ended the operation, or nil.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Cancel asks the performer to stop with C-CANCEL-RQ. The operation still
// ends with the performer's final response.
func (o *Operation) Cancel(ctx context.Context) error {
	return o.host.sendCancel(ctx, o)
}
