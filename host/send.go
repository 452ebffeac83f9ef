package host

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/association"
	"github.com/caio-sobreiro/dicomassoc/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/negotiation"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Request is an operation to invoke on the peer.
type Request struct {
	// Command is copied; its MessageID is assigned by the host.
	Command *types.Message
	// Data is the encoded data set, nil when the command has none.
	Data []byte
	// ContextID pins the presentation context. Zero selects the first
	// accepted context for the command's SOP class.
	ContextID byte
	// TransferSyntaxes restricts the automatic context selection.
	TransferSyntaxes []string
}

// SendRequest sends req with a fresh Message ID and returns the operation
// tracking its responses. It fails at once with errors.ErrCapacityExceeded
// when the negotiated number of outstanding invoked operations is reached.
func (h *Host) SendRequest(ctx context.Context, req Request) (*Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Command == nil || !req.Command.CommandField.IsRequest() || req.Command.CommandField == types.CCancelRQ {
		return nil, errors.Wrap(dicomerrors.ErrInvalidMessage, "not an invocable request")
	}
	a := h.Association()
	if a == nil {
		return nil, &dicomerrors.ClosedError{Cause: h.Err()}
	}
	pc, err := contextFor(a, req)
	if err != nil {
		return nil, err
	}

	cmd := *req.Command
	op := newOperation(h, pc.ID, &cmd, h.opts.messageTimeout)

	h.mu.Lock()
	if h.closing {
		cause := h.closeErr
		h.mu.Unlock()
		return nil, &dicomerrors.ClosedError{Cause: cause}
	}
	if n := len(h.invoked); (a.InvokeLimit > 0 && n >= a.InvokeLimit) || n >= math.MaxUint16 {
		h.mu.Unlock()
		return nil, errors.Wrapf(dicomerrors.ErrCapacityExceeded, "%d of %d invoked operations outstanding", n, a.InvokeLimit)
	}
	cmd.MessageID = h.allocateIDLocked()
	op.MessageID = cmd.MessageID
	h.invoked[cmd.MessageID] = op
	log := h.log
	h.mu.Unlock()

	log.Debugw("Sending DIMSE request",
		"message_id", cmd.MessageID,
		"command_field", cmd.CommandField.String(),
		"sop_class", types.UIDName(cmd.SOPClassUID()),
		"context_id", pc.ID,
		"data_bytes", len(req.Data))

	if err := h.sendMessage(pc.ID, &cmd, req.Data); err != nil {
		h.forget(op)
		op.fail(err)
		return nil, err
	}
	op.startTimer()
	return op, nil
}

func contextFor(a *association.Association, req Request) (negotiation.Result, error) {
	if req.ContextID != 0 {
		pc, ok := a.Context(req.ContextID)
		if !ok || !pc.Accepted() {
			return negotiation.Result{}, errors.Wrapf(dicomerrors.ErrNoPresentationCtx, "presentation context %d not accepted", req.ContextID)
		}
		return pc, nil
	}
	sopClass := req.Command.SOPClassUID()
	pc, ok := a.FindContext(sopClass, req.TransferSyntaxes...)
	if !ok {
		return negotiation.Result{}, errors.Wrapf(dicomerrors.ErrNoPresentationCtx, "no accepted presentation context for %s", types.UIDName(sopClass))
	}
	return pc, nil
}

// allocateIDLocked returns the next Message ID not in use. Zero is skipped.
func (h *Host) allocateIDLocked() uint16 {
	for {
		h.nextID++
		if h.nextID == 0 {
			continue
		}
		if _, busy := h.invoked[h.nextID]; !busy {
			return h.nextID
		}
	}
}

func (h *Host) forget(op *Operation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invoked[op.MessageID] == op {
		delete(h.invoked, op.MessageID)
	}
}

// sendMessage fragments one message for the peer's maximum PDU length and
// writes its PDUs back to back.
func (h *Host) sendMessage(contextID byte, cmd *types.Message, data []byte) error {
	a := h.Association()
	if a == nil {
		return &dicomerrors.ClosedError{Cause: h.Err()}
	}
	pdus, err := dimse.EncodeMessage(contextID, cmd, data, a.RemoteMaxPDULength)
	if err != nil {
		return err
	}

	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	for _, p := range pdus {
		if err := h.machine.SendData(p); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) sendCancel(ctx context.Context, op *Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-op.Done():
		return nil
	default:
	}
	cmd := &types.Message{
		CommandField:              types.CCancelRQ,
		MessageIDBeingRespondedTo: op.MessageID,
		CommandDataSetType:        types.NoDataSet,
	}
	h.logger().Debugw("Sending C-CANCEL-RQ", "message_id", op.MessageID)
	return h.sendMessage(op.ContextID, cmd, nil)
}
