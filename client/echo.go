package client

import (
	"context"

	"github.com/caio-sobreiro/dicomassoc/host"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// CEchoResponse represents the result of a C-ECHO operation.
type CEchoResponse struct {
	Status    uint16
	MessageID uint16
}

// SendCEcho performs a DICOM C-ECHO (verification) request and returns the response status.
func (a *Association) SendCEcho(ctx context.Context) (*CEchoResponse, error) {
	rsp, id, err := a.invoke(ctx, host.Request{Command: &types.Message{
		CommandField:        types.CEchoRQ,
		Priority:            types.PriorityMedium,
		AffectedSOPClassUID: types.VerificationSOPClass,
	}})
	if err != nil {
		return nil, err
	}
	return &CEchoResponse{Status: rsp.Command.Status, MessageID: id}, nil
}
