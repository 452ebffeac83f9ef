// Package interfaces contains the capabilities an application implements to
// perform DIMSE operations.
package interfaces

import (
	"context"

	"github.com/caio-sobreiro/dicomassoc/types"
)

// ServiceHandler performs one incoming request and returns its single final
// response. A nil response with a nil error is answered with a failure
// status by the host.
type ServiceHandler interface {
	HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error)
}

// StreamingServiceHandler performs requests answered by several responses,
// such as C-FIND matches. Every response, pending or final, goes through
// responder. The context is canceled when the requestor sends C-CANCEL-RQ
// or the association ends.
type StreamingServiceHandler interface {
	HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, responder ResponseSender) error
}

// ResponseSender sends responses to the request being performed.
type ResponseSender interface {
	SendResponse(msg *types.Message, data []byte) error
}

// CGetResponder is what a C-GET performer receives: it can also issue
// C-STORE sub-operations on the same association.
type CGetResponder interface {
	ResponseSender
	// SendCStore stores one instance on the requestor and returns the
	// status of its C-STORE-RSP.
	SendCStore(ctx context.Context, sopClassUID, sopInstanceUID string, data []byte) (uint16, error)
}

// HandlerFunc adapts a function to ServiceHandler.
type HandlerFunc func(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error)

func (f HandlerFunc) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	return f(ctx, msg, data)
}
