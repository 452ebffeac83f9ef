package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomassoc/types"
)

func TestEchoService(t *testing.T) {
	s := NewEchoService()
	for _, id := range []uint16{1, 42, 65535} {
		rsp, data, err := s.HandleDIMSE(context.Background(), echoRequest(id), nil)
		require.NoError(t, err)
		assert.Nil(t, data)
		assert.Equal(t, types.CEchoRSP, rsp.CommandField)
		assert.Equal(t, id, rsp.MessageIDBeingRespondedTo)
		assert.Equal(t, types.VerificationSOPClass, rsp.AffectedSOPClassUID)
		assert.Equal(t, types.StatusSuccess, rsp.Status)
		assert.False(t, rsp.HasDataSet())
	}

	assert.NoError(t, s.HealthCheck(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.HealthCheck(ctx), context.Canceled)
}

func storeRequest() *types.Message {
	return &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              7,
		AffectedSOPClassUID:    types.CTImageStorage,
		AffectedSOPInstanceUID: "1.2.3.4.5",
		CommandDataSetType:     types.DataSetPresent,
	}
}

func TestStoreService(t *testing.T) {
	var got []byte
	s := NewStoreService(func(ctx context.Context, msg *types.Message, data []byte) (uint16, error) {
		got = data
		return types.StatusSuccess, nil
	})

	rsp, data, err := s.HandleDIMSE(context.Background(), storeRequest(), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
	assert.Nil(t, data)
	assert.Equal(t, types.CStoreRSP, rsp.CommandField)
	assert.Equal(t, "1.2.3.4.5", rsp.AffectedSOPInstanceUID)
	assert.Equal(t, types.CTImageStorage, rsp.AffectedSOPClassUID)
	assert.False(t, rsp.HasDataSet())
}

func TestStoreServiceEchoesDataSet(t *testing.T) {
	s := NewStoreService(nil)
	s.EchoDataSet = true

	rsp, data, err := s.HandleDIMSE(context.Background(), storeRequest(), []byte{9, 9})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, data)
	assert.True(t, rsp.HasDataSet())
}

func TestStoreServiceFailures(t *testing.T) {
	_, _, err := NewStoreService(nil).HandleDIMSE(context.Background(), storeRequest(), nil)
	assert.Error(t, err, "no data set")

	boom := errors.New("disk full")
	s := NewStoreService(func(ctx context.Context, msg *types.Message, data []byte) (uint16, error) {
		return 0, boom
	})
	_, _, err = s.HandleDIMSE(context.Background(), storeRequest(), []byte{1})
	assert.ErrorIs(t, err, boom)

	s = NewStoreService(func(ctx context.Context, msg *types.Message, data []byte) (uint16, error) {
		return types.StatusOutOfResources, nil
	})
	rsp, _, err := s.HandleDIMSE(context.Background(), storeRequest(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, types.StatusOutOfResources, rsp.Status)
}

func findRequest() *types.Message {
	return &types.Message{
		CommandField:        types.CFindRQ,
		MessageID:           11,
		AffectedSOPClassUID: types.StudyRootQueryRetrieveInformationModelFind,
		CommandDataSetType:  types.DataSetPresent,
	}
}

func TestFindServiceStreamsMatches(t *testing.T) {
	s := NewFindService(func(ctx context.Context, msg *types.Message, query []byte) ([][]byte, error) {
		return [][]byte{{1}, {2}, {3}}, nil
	})

	c := &collector{}
	require.NoError(t, s.HandleDIMSEStreaming(context.Background(), findRequest(), []byte{0}, c))
	assert.Equal(t, []uint16{types.StatusPending, types.StatusPending, types.StatusPending, types.StatusSuccess}, c.statuses())
	assert.Equal(t, [][]byte{{1}, {2}, {3}, nil}, c.data)
	assert.True(t, c.responses[0].HasDataSet())
	assert.False(t, c.responses[3].HasDataSet())
}

func TestFindServiceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewFindService(func(ctx context.Context, msg *types.Message, query []byte) ([][]byte, error) {
		return [][]byte{{1}, {2}}, nil
	})

	c := &collector{}
	sender := responderFunc(func(msg *types.Message, data []byte) error {
		cancel()
		return c.SendResponse(msg, data)
	})
	require.NoError(t, s.HandleDIMSEStreaming(ctx, findRequest(), nil, sender))
	assert.Equal(t, []uint16{types.StatusPending, types.StatusCancel}, c.statuses())
}

func TestFindServiceSingleResponse(t *testing.T) {
	rsp, _, err := NewFindService(nil).HandleDIMSE(context.Background(), findRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.CFindRSP, rsp.CommandField)
	assert.Equal(t, types.StatusSuccess, rsp.Status)

	s := NewFindService(func(ctx context.Context, msg *types.Message, query []byte) ([][]byte, error) {
		return nil, errors.New("index unavailable")
	})
	rsp, _, err = s.HandleDIMSE(context.Background(), findRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailure, rsp.Status)
}

// getCollector implements interfaces.CGetResponder
type getCollector struct {
	collector
	stored []string
	status map[string]uint16
}

func (g *getCollector) SendCStore(ctx context.Context, sopClassUID, sopInstanceUID string, data []byte) (uint16, error) {
	g.stored = append(g.stored, sopInstanceUID)
	if s, ok := g.status[sopInstanceUID]; ok {
		return s, nil
	}
	return types.StatusSuccess, nil
}

func TestGetServiceSubOperations(t *testing.T) {
	s := NewGetService(func(ctx context.Context, msg *types.Message, query []byte) ([]Instance, error) {
		return []Instance{
			{SOPClassUID: types.CTImageStorage, SOPInstanceUID: "1.1", Data: []byte{1}},
			{SOPClassUID: types.CTImageStorage, SOPInstanceUID: "1.2", Data: []byte{2}},
			{SOPClassUID: types.CTImageStorage, SOPInstanceUID: "1.3", Data: []byte{3}},
		}, nil
	})

	g := &getCollector{status: map[string]uint16{"1.2": types.StatusOutOfResources}}
	req := &types.Message{CommandField: types.CGetRQ, MessageID: 2, AffectedSOPClassUID: types.StudyRootQueryRetrieveInformationModelGet}
	require.NoError(t, s.HandleDIMSEStreaming(context.Background(), req, []byte{0}, g))

	assert.Equal(t, []string{"1.1", "1.2", "1.3"}, g.stored)
	assert.Equal(t, []uint16{types.StatusPending, types.StatusPending, types.StatusSubOperationsCompleteWarnings}, g.statuses())

	final := g.responses[2]
	assert.Equal(t, types.CGetRSP, final.CommandField)
	assert.Equal(t, uint16(2), *final.NumberOfCompletedSuboperations)
	assert.Equal(t, uint16(1), *final.NumberOfFailedSuboperations)
	assert.Equal(t, uint16(0), *final.NumberOfRemainingSuboperations)
	assert.Equal(t, uint16(2), *g.responses[0].NumberOfRemainingSuboperations)
}

func TestGetServiceNeedsSubOperations(t *testing.T) {
	c := &collector{}
	req := &types.Message{CommandField: types.CGetRQ, MessageID: 2}
	require.NoError(t, NewGetService(nil).HandleDIMSEStreaming(context.Background(), req, nil, c))
	assert.Equal(t, []uint16{types.StatusUnrecognizedOperation}, c.statuses())

	_, _, err := NewGetService(nil).HandleDIMSE(context.Background(), req, nil)
	assert.Error(t, err)
}
