package client

import (
	"context"
	"io"

	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/host"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// CFindRequest encapsulates the information required to perform a C-FIND query.
type CFindRequest struct {
	SOPClassUID string // default: Study Root Query/Retrieve - FIND
	Priority    uint16
	// Identifier is the encoded query data set.
	Identifier []byte
}

// CFindResponse represents a single C-FIND response from the SCP.
type CFindResponse struct {
	Status     uint16
	MessageID  uint16
	Identifier []byte
}

// SendCFind performs a DICOM C-FIND query and returns all responses in order.
func (a *Association) SendCFind(ctx context.Context, req *CFindRequest) ([]*CFindResponse, error) {
	var responses []*CFindResponse
	err := a.FindEach(ctx, req, func(rsp *CFindResponse) bool {
		responses = append(responses, rsp)
		return true
	})
	return responses, err
}

// FindEach performs a C-FIND query and hands every response to fn as it
// arrives, the final one included. When fn returns false for a pending
// response the query is canceled with C-CANCEL-RQ and the remaining
// responses are drained without calling fn again.
func (a *Association) FindEach(ctx context.Context, req *CFindRequest, fn func(*CFindResponse) bool) error {
	if req == nil {
		return errors.Wrap(dicomerrors.ErrInvalidMessage, "c-find request cannot be nil")
	}
	if req.Identifier == nil {
		return errors.Wrap(dicomerrors.ErrInvalidMessage, "c-find request requires an identifier")
	}
	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelFind
	}

	op, err := a.host.SendRequest(ctx, host.Request{
		Command: &types.Message{
			CommandField:        types.CFindRQ,
			Priority:            priorityOrDefault(req.Priority),
			AffectedSOPClassUID: sopClass,
		},
		Data: req.Identifier,
	})
	if err != nil {
		return err
	}

	canceled := false
	for {
		rsp, err := op.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "C-FIND")
		}
		if canceled {
			continue
		}
		if !fn(&CFindResponse{Status: rsp.Command.Status, MessageID: op.MessageID, Identifier: rsp.Data}) && rsp.Command.IsPending() {
			canceled = true
			a.logger.Debugw("Canceling C-FIND", "message_id", op.MessageID)
			if err := op.Cancel(ctx); err != nil {
				return errors.Wrap(err, "C-CANCEL")
			}
		}
	}
}
