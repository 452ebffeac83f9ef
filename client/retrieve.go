package client

import (
	"context"
	"io"

	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/host"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// CGetRequest encapsulates the information required to perform a C-GET operation.
type CGetRequest struct {
	SOPClassUID string // default: Study Root Query/Retrieve - GET
	Priority    uint16
	Identifier  []byte // Query identifying which instances to retrieve
}

// CMoveRequest asks the SCP to send the matching instances to
// MoveDestination over an association of its own.
type CMoveRequest struct {
	SOPClassUID     string // default: Study Root Query/Retrieve - MOVE
	Priority        uint16
	MoveDestination string
	Identifier      []byte
}

// RetrieveResponse is a single C-GET or C-MOVE response with the
// sub-operation counters the SCP reported.
type RetrieveResponse struct {
	Status                         uint16
	MessageID                      uint16
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
	// Identifier lists failed instances on a final failure response.
	Identifier []byte
}

type (
	CGetResponse  = RetrieveResponse
	CMoveResponse = RetrieveResponse
)

// SendCGet performs a DICOM C-GET operation to retrieve instances. The SCP
// sends a C-STORE on the same association for each matching instance; they
// are performed by Config.StoreHandler, which must be set.
func (a *Association) SendCGet(ctx context.Context, req *CGetRequest) ([]*CGetResponse, error) {
	if req == nil {
		return nil, errors.Wrap(dicomerrors.ErrInvalidMessage, "c-get request cannot be nil")
	}
	if a.config.StoreHandler == nil {
		return nil, errors.Wrap(dicomerrors.ErrInvalidMessage, "c-get needs Config.StoreHandler to receive instances")
	}
	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelGet
	}
	return a.retrieve(ctx, &types.Message{
		CommandField:        types.CGetRQ,
		Priority:            priorityOrDefault(req.Priority),
		AffectedSOPClassUID: sopClass,
	}, req.Identifier)
}

// SendCMove performs a DICOM C-MOVE operation.
func (a *Association) SendCMove(ctx context.Context, req *CMoveRequest) ([]*CMoveResponse, error) {
	if req == nil {
		return nil, errors.Wrap(dicomerrors.ErrInvalidMessage, "c-move request cannot be nil")
	}
	if req.MoveDestination == "" {
		return nil, errors.Wrap(dicomerrors.ErrInvalidMessage, "c-move request requires a move destination")
	}
	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelMove
	}
	return a.retrieve(ctx, &types.Message{
		CommandField:        types.CMoveRQ,
		Priority:            priorityOrDefault(req.Priority),
		AffectedSOPClassUID: sopClass,
		MoveDestination:     req.MoveDestination,
	}, req.Identifier)
}

func (a *Association) retrieve(ctx context.Context, cmd *types.Message, identifier []byte) ([]*RetrieveResponse, error) {
	if identifier == nil {
		return nil, errors.Wrapf(dicomerrors.ErrInvalidMessage, "%s request requires an identifier", cmd.CommandField)
	}
	op, err := a.host.SendRequest(ctx, host.Request{Command: cmd, Data: identifier})
	if err != nil {
		return nil, err
	}

	var responses []*RetrieveResponse
	for {
		rsp, err := op.Next(ctx)
		if errors.Is(err, io.EOF) {
			return responses, nil
		}
		if err != nil {
			return responses, errors.Wrapf(err, "failed to receive %s response", cmd.CommandField.Response())
		}
		c := rsp.Command
		responses = append(responses, &RetrieveResponse{
			Status:                         c.Status,
			MessageID:                      op.MessageID,
			NumberOfRemainingSuboperations: c.NumberOfRemainingSuboperations,
			NumberOfCompletedSuboperations: c.NumberOfCompletedSuboperations,
			NumberOfFailedSuboperations:    c.NumberOfFailedSuboperations,
			NumberOfWarningSuboperations:   c.NumberOfWarningSuboperations,
			Identifier:                     rsp.Data,
		})
	}
}
