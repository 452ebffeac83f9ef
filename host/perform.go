package host

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/association"
	"github.com/caio-sobreiro/dicomassoc/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/interfaces"
	"github.com/caio-sobreiro/dicomassoc/types"
)

type assocKey struct{}

// AssociationFromContext returns the association a request is being
// performed on. Handlers receive such a context.
func AssociationFromContext(ctx context.Context) (*association.Association, bool) {
	a, ok := ctx.Value(assocKey{}).(*association.Association)
	return a, ok
}

// performing is a request received from the peer.
type performing struct {
	msg    *dimse.Message
	ctx    context.Context
	cancel context.CancelFunc
}

// perform schedules an incoming request on the worker pool. It runs on the
// receive goroutine, so answers it gives itself are sent from a separate
// goroutine.
func (h *Host) perform(a *association.Association, msg *dimse.Message) {
	cmd := msg.Command

	h.mu.Lock()
	log := h.log
	if _, dup := h.performed[cmd.MessageID]; dup {
		h.mu.Unlock()
		log.Warnw("Duplicate Message ID from peer", "message_id", cmd.MessageID)
		h.respondAsync(msg, types.StatusFailure)
		return
	}
	if a.PerformLimit > 0 && len(h.performed) >= a.PerformLimit {
		h.mu.Unlock()
		log.Warnw("Perform limit reached, refusing request",
			"message_id", cmd.MessageID,
			"limit", a.PerformLimit)
		h.respondAsync(msg, types.StatusOutOfResources)
		return
	}
	ctx, cancel := context.WithCancel(context.WithValue(h.ctx, assocKey{}, a))
	p := &performing{msg: msg, ctx: ctx, cancel: cancel}
	h.performed[cmd.MessageID] = p
	h.mu.Unlock()

	log.Debugw("DIMSE request received",
		"message_id", cmd.MessageID,
		"command_field", cmd.CommandField.String(),
		"sop_class", types.UIDName(cmd.SOPClassUID()),
		"context_id", msg.ContextID)

	h.workers.Add(1)
	if err := h.pool.Invoke(p); err != nil {
		h.workers.Done()
		h.finishPerformed(p)
		log.Warnw("Worker pool saturated, refusing request",
			"message_id", cmd.MessageID,
			"error", err)
		h.respondAsync(msg, types.StatusOutOfResources)
	}
}

func (h *Host) respondAsync(msg *dimse.Message, status uint16) {
	h.workers.Add(1)
	go func() {
		defer h.workers.Done()
		if err := h.sendMessage(msg.ContextID, types.NewResponse(msg.Command, status), nil); err != nil {
			h.logger().Warnw("Failed to refuse request", "message_id", msg.Command.MessageID, "error", err)
		}
	}()
}

// finishPerformed forgets p. The same Message ID may already belong to a
// newer request, which is left alone.
func (h *Host) finishPerformed(p *performing) {
	h.mu.Lock()
	if h.performed[p.msg.Command.MessageID] == p {
		delete(h.performed, p.msg.Command.MessageID)
	}
	h.mu.Unlock()
	p.cancel()
}

func (h *Host) cancelPerformed(id uint16) {
	h.mu.Lock()
	p, ok := h.performed[id]
	log := h.log
	h.mu.Unlock()
	if !ok {
		log.Debugw("C-CANCEL-RQ for no running operation", "message_id", id)
		return
	}
	log.Infow("C-CANCEL-RQ received", "message_id", id)
	p.cancel()
}

func (h *Host) work(arg any) {
	p := arg.(*performing)
	defer h.workers.Done()
	defer h.finishPerformed(p)

	r := &responder{h: h, p: p}
	defer func() {
		if rec := recover(); rec != nil {
			h.logger().Errorw("Handler panicked", "message_id", p.msg.Command.MessageID, "panic", rec)
			r.refuse(types.StatusFailure)
		}
	}()

	err := h.invokeHandler(p, r)
	if r.finished() {
		if err != nil {
			h.logger().Warnw("Handler failed after its final response", "message_id", p.msg.Command.MessageID, "error", err)
		}
		return
	}
	status := statusFor(p.ctx, err)
	if err != nil {
		h.logger().Warnw("Handler failed",
			"message_id", p.msg.Command.MessageID,
			"command_field", p.msg.Command.CommandField.String(),
			"status", status,
			"error", err)
	}
	r.refuse(status)
}

func (h *Host) invokeHandler(p *performing, r *responder) error {
	cmd := p.msg.Command
	handler := h.opts.handler
	if handler == nil {
		return dicomerrors.NewDIMSEError(cmd.CommandField.String(), types.StatusUnrecognizedOperation, "no handler")
	}
	if s, ok := handler.(interfaces.StreamingServiceHandler); ok {
		return s.HandleDIMSEStreaming(p.ctx, cmd, p.msg.Data, r)
	}
	rsp, data, err := handler.HandleDIMSE(p.ctx, cmd, p.msg.Data)
	if err != nil || rsp == nil {
		return err
	}
	return r.SendResponse(rsp, data)
}

// statusFor picks the status of the response sent for a handler that did
// not answer.
func statusFor(ctx context.Context, err error) uint16 {
	var dimseErr *dicomerrors.DIMSEError
	switch {
	case errors.As(err, &dimseErr):
		return dimseErr.Status
	case ctx.Err() != nil:
		return types.StatusCancel
	default:
		return types.StatusFailure
	}
}

// responder sends the responses of one performed request. It also issues
// C-STORE sub-operations for C-GET.
type responder struct {
	h *Host
	p *performing

	mu   sync.Mutex
	done bool
}

var _ interfaces.CGetResponder = (*responder)(nil)

func (r *responder) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *responder) SendResponse(msg *types.Message, data []byte) error {
	req := r.p.msg.Command
	rsp := *msg
	if rsp.CommandField == 0 {
		rsp.CommandField = req.CommandField.Response()
	}
	if rsp.CommandField != req.CommandField.Response() {
		return errors.Wrapf(dicomerrors.ErrInvalidMessage, "%s cannot answer %s", rsp.CommandField, req.CommandField)
	}
	rsp.MessageIDBeingRespondedTo = req.MessageID
	if rsp.AffectedSOPClassUID == "" {
		rsp.AffectedSOPClassUID = req.SOPClassUID()
	}
	final := !types.IsPendingStatus(rsp.Status)

	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return errors.Wrapf(dicomerrors.ErrInvalidMessage, "response after the final response to message %d", req.MessageID)
	}
	r.done = final
	r.mu.Unlock()

	if final {
		// the peer may reuse the Message ID as soon as it sees this response
		r.h.finishPerformed(r.p)
	}
	return r.h.sendMessage(r.p.msg.ContextID, &rsp, data)
}

func (r *responder) refuse(status uint16) {
	if err := r.SendResponse(types.NewResponse(r.p.msg.Command, status), nil); err != nil {
		r.h.logger().Warnw("Failed to send failure response",
			"message_id", r.p.msg.Command.MessageID,
			"error", err)
	}
}

// SendCStore stores one instance on the peer and waits for its response.
func (r *responder) SendCStore(ctx context.Context, sopClassUID, sopInstanceUID string, data []byte) (uint16, error) {
	op, err := r.h.SendRequest(ctx, Request{
		Command: &types.Message{
			CommandField:           types.CStoreRQ,
			AffectedSOPClassUID:    sopClassUID,
			AffectedSOPInstanceUID: sopInstanceUID,
			Priority:               r.p.msg.Command.Priority,
		},
		Data: data,
	})
	if err != nil {
		return 0, err
	}
	rsp, err := op.Wait(ctx)
	if err != nil {
		return 0, err
	}
	return rsp.Command.Status, nil
}
