package client

import (
	"context"

	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/host"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Invoke sends req without waiting for its responses. Use it to drive a
// request by hand, for instance to cancel it later.
func (a *Association) Invoke(ctx context.Context, req host.Request) (*host.Operation, error) {
	return a.host.SendRequest(ctx, req)
}

// SendCCancel sends a C-CANCEL-RQ for a pending C-FIND, C-GET or C-MOVE.
// C-CANCEL has no response of its own: op still ends with the SCP's final
// response, normally with status Cancel.
func (a *Association) SendCCancel(ctx context.Context, op *host.Operation) error {
	if op == nil {
		return errors.Wrap(dicomerrors.ErrInvalidMessage, "operation must be provided for C-CANCEL")
	}
	switch op.Request.CommandField {
	case types.CFindRQ, types.CGetRQ, types.CMoveRQ:
	default:
		return errors.Wrapf(dicomerrors.ErrInvalidMessage, "%s cannot be canceled", op.Request.CommandField)
	}
	if err := op.Cancel(ctx); err != nil {
		return errors.Wrap(err, "failed to send C-CANCEL request")
	}
	a.logger.Debugw("C-CANCEL sent", "message_id", op.MessageID, "sop_class", op.Request.AffectedSOPClassUID)
	return nil
}
