package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caio-sobreiro/dicomassoc/types"
)

func TestResponseBuilders(t *testing.T) {
	find := findRequest()
	move := &types.Message{CommandField: types.CMoveRQ, MessageID: 4, AffectedSOPClassUID: types.StudyRootQueryRetrieveInformationModelMove}
	store := storeRequest()

	tests := []struct {
		name       string
		rsp        *types.Message
		command    types.CommandField
		respondsTo uint16
		status     uint16
		hasDataSet bool
	}{
		{"echo", NewCEchoResponse(echoRequest(3), types.StatusSuccess), types.CEchoRSP, 3, types.StatusSuccess, false},
		{"find pending", NewCFindPendingResponse(find), types.CFindRSP, 11, types.StatusPending, true},
		{"find success", NewCFindSuccessResponse(find), types.CFindRSP, 11, types.StatusSuccess, false},
		{"find error", NewCFindErrorResponse(find, types.StatusFailure), types.CFindRSP, 11, types.StatusFailure, false},
		{"move success", NewCMoveSuccessResponse(move, 3, 1, 0), types.CMoveRSP, 4, types.StatusSuccess, false},
		{"move pending", NewCMovePendingResponse(move, 1, 0, 0, 2), types.CMoveRSP, 4, types.StatusPending, false},
		{"move error", NewCMoveErrorResponse(move, types.StatusOutOfResources), types.CMoveRSP, 4, types.StatusOutOfResources, false},
		{"store", NewCStoreResponse(store, types.StatusSuccess), types.CStoreRSP, 7, types.StatusSuccess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.command, tt.rsp.CommandField)
			assert.Equal(t, tt.respondsTo, tt.rsp.MessageIDBeingRespondedTo)
			assert.Equal(t, tt.status, tt.rsp.Status)
			assert.Equal(t, tt.hasDataSet, tt.rsp.HasDataSet())
		})
	}
}

func TestMoveCounters(t *testing.T) {
	move := &types.Message{CommandField: types.CMoveRQ, MessageID: 4}

	rsp := NewCMoveSuccessResponse(move, 3, 1, 2)
	assert.Equal(t, uint16(3), *rsp.NumberOfCompletedSuboperations)
	assert.Equal(t, uint16(1), *rsp.NumberOfFailedSuboperations)
	assert.Equal(t, uint16(2), *rsp.NumberOfWarningSuboperations)
	assert.Equal(t, uint16(0), *rsp.NumberOfRemainingSuboperations)

	rsp = NewCMoveErrorResponse(move, types.StatusFailure)
	assert.Nil(t, rsp.NumberOfCompletedSuboperations)
	assert.Nil(t, rsp.NumberOfRemainingSuboperations)
}

func TestStoreResponseInstanceUID(t *testing.T) {
	req := storeRequest()
	assert.Equal(t, "1.2.3.4.5", NewCStoreResponse(req, types.StatusSuccess).AffectedSOPInstanceUID)
	assert.Equal(t, "9.9", NewResponseBuilder(req).CStoreResponse(types.StatusSuccess, "9.9").AffectedSOPInstanceUID)
}

func TestEchoResponseDefaultsSOPClass(t *testing.T) {
	rsp := NewCEchoResponse(&types.Message{CommandField: types.CEchoRQ, MessageID: 1}, types.StatusSuccess)
	assert.Equal(t, types.VerificationSOPClass, rsp.AffectedSOPClassUID)
}
