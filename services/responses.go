package services

import (
	"github.com/caio-sobreiro/dicomassoc/types"
)

// ResponseBuilder creates response messages that carry the identifying
// fields of the request they answer.
type ResponseBuilder struct {
	request *types.Message
}

func NewResponseBuilder(request *types.Message) *ResponseBuilder {
	return &ResponseBuilder{request: request}
}

func (b *ResponseBuilder) base(cmd types.CommandField, status uint16) *types.Message {
	return &types.Message{
		CommandField:              cmd,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.SOPClassUID(),
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}
}

// CEchoResponse creates a C-ECHO-RSP.
func (b *ResponseBuilder) CEchoResponse(status uint16) *types.Message {
	rsp := b.base(types.CEchoRSP, status)
	if rsp.AffectedSOPClassUID == "" {
		rsp.AffectedSOPClassUID = types.VerificationSOPClass
	}
	return rsp
}

// CFindResponse creates a C-FIND-RSP. Pending responses carry a matching
// identifier, so set hasDataset for them.
func (b *ResponseBuilder) CFindResponse(status uint16, hasDataset bool) *types.Message {
	rsp := b.base(types.CFindRSP, status)
	if hasDataset {
		rsp.CommandDataSetType = types.DataSetPresent
	}
	return rsp
}

// CMoveResponse creates a C-MOVE-RSP. Nil counters are omitted.
func (b *ResponseBuilder) CMoveResponse(status uint16, completed, failed, warning, remaining *uint16) *types.Message {
	rsp := b.base(types.CMoveRSP, status)
	rsp.NumberOfCompletedSuboperations = completed
	rsp.NumberOfFailedSuboperations = failed
	rsp.NumberOfWarningSuboperations = warning
	rsp.NumberOfRemainingSuboperations = remaining
	return rsp
}

// CGetResponse creates a C-GET-RSP. Nil counters are omitted.
func (b *ResponseBuilder) CGetResponse(status uint16, completed, failed, warning, remaining *uint16) *types.Message {
	rsp := b.CMoveResponse(status, completed, failed, warning, remaining)
	rsp.CommandField = types.CGetRSP
	return rsp
}

// CStoreResponse creates a C-STORE-RSP. An empty sopInstanceUID falls back
// to the request's.
func (b *ResponseBuilder) CStoreResponse(status uint16, sopInstanceUID string) *types.Message {
	if sopInstanceUID == "" {
		sopInstanceUID = b.request.AffectedSOPInstanceUID
	}
	rsp := b.base(types.CStoreRSP, status)
	rsp.AffectedSOPInstanceUID = sopInstanceUID
	return rsp
}

func NewCEchoResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CEchoResponse(status)
}

func NewCFindPendingResponse(request *types.Message) *types.Message {
	return NewResponseBuilder(request).CFindResponse(types.StatusPending, true)
}

func NewCFindSuccessResponse(request *types.Message) *types.Message {
	return NewResponseBuilder(request).CFindResponse(types.StatusSuccess, false)
}

func NewCFindErrorResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CFindResponse(status, false)
}

// NewCMoveSuccessResponse creates the final C-MOVE-RSP with no sub-operations remaining.
func NewCMoveSuccessResponse(request *types.Message, completed, failed, warning uint16) *types.Message {
	remaining := uint16(0)
	return NewResponseBuilder(request).CMoveResponse(types.StatusSuccess, &completed, &failed, &warning, &remaining)
}

func NewCMovePendingResponse(request *types.Message, completed, failed, warning, remaining uint16) *types.Message {
	return NewResponseBuilder(request).CMoveResponse(types.StatusPending, &completed, &failed, &warning, &remaining)
}

func NewCMoveErrorResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CMoveResponse(status, nil, nil, nil, nil)
}

// NewCGetResponse creates a C-GET-RSP with all four counters set.
func NewCGetResponse(request *types.Message, status, completed, failed, warning, remaining uint16) *types.Message {
	return NewResponseBuilder(request).CGetResponse(status, &completed, &failed, &warning, &remaining)
}

func NewCGetErrorResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CGetResponse(status, nil, nil, nil, nil)
}

func NewCStoreResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CStoreResponse(status, "")
}
