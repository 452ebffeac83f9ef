package dimse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/types"
)

func storeRequest(t *testing.T, id uint16) *types.Message {
	t.Helper()
	return &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              id,
		AffectedSOPClassUID:    types.CTImageStorage,
		AffectedSOPInstanceUID: "1.2.3.4",
		CommandDataSetType:     types.DataSetPresent,
	}
}

func feed(t *testing.T, r *Reassembler, pdus []*pdu.PDataTF) []*Message {
	t.Helper()
	var out []*Message
	for _, p := range pdus {
		for _, v := range p.Items {
			msg, err := r.Add(v)
			require.NoError(t, err)
			if msg != nil {
				out = append(out, msg)
			}
		}
	}
	return out
}

func TestReassembleRoundTrip(t *testing.T) {
	for _, maxLen := range []uint32{MinMaxPDULength, 64, 1000, DefaultMaxPDULength} {
		data := pattern(5000)
		pdus, err := EncodeMessage(7, storeRequest(t, 11), data, maxLen)
		require.NoError(t, err)

		r := NewReassembler()
		msgs := feed(t, r, pdus)
		require.Len(t, msgs, 1)
		assert.Equal(t, byte(7), msgs[0].ContextID)
		assert.Equal(t, uint16(11), msgs[0].Command.MessageID)
		assert.Equal(t, data, msgs[0].Data)
		assert.Zero(t, r.Pending())
	}
}

func TestReassembleCommandOnly(t *testing.T) {
	pdus, err := EncodeMessage(1, &types.Message{CommandField: types.CEchoRQ, MessageID: 1}, nil, 32)
	require.NoError(t, err)

	msgs := feed(t, NewReassembler(), pdus)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].Data)
	assert.NotEmpty(t, msgs[0].CommandBytes)
}

func TestReassembleEmptyDataSet(t *testing.T) {
	pdus, err := EncodeMessage(1, storeRequest(t, 2), []byte{}, DefaultMaxPDULength)
	require.NoError(t, err)

	msgs := feed(t, NewReassembler(), pdus)
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].Data)
	assert.Empty(t, msgs[0].Data)
}

func TestReassembleInterleavedContexts(t *testing.T) {
	a, err := EncodeMessage(1, storeRequest(t, 1), pattern(300), 64)
	require.NoError(t, err)
	b, err := EncodeMessage(3, storeRequest(t, 2), pattern(200), 64)
	require.NoError(t, err)

	r := NewReassembler()
	var got []*Message
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			got = append(got, feed(t, r, a[i:i+1])...)
		}
		if i < len(b) {
			got = append(got, feed(t, r, b[i:i+1])...)
		}
	}

	require.Len(t, got, 2)
	byContext := map[byte]*Message{got[0].ContextID: got[0], got[1].ContextID: got[1]}
	assert.Equal(t, pattern(300), byContext[1].Data)
	assert.Equal(t, pattern(200), byContext[3].Data)
}

func TestReassembleOutOfOrder(t *testing.T) {
	cmd, err := EncodeCommand(storeRequest(t, 1))
	require.NoError(t, err)
	echo, err := EncodeCommand(&types.Message{CommandField: types.CEchoRQ, MessageID: 1, CommandDataSetType: types.NoDataSet})
	require.NoError(t, err)

	t.Run("data before command", func(t *testing.T) {
		r := NewReassembler()
		_, err := r.Add(pdu.PDV{ContextID: 1, Last: true, Data: []byte{1}})
		assert.ErrorIs(t, err, dicomerrors.ErrProtocolViolation)
	})

	t.Run("data while command incomplete", func(t *testing.T) {
		r := NewReassembler()
		_, err := r.Add(pdu.PDV{ContextID: 1, Command: true, Data: cmd[:10]})
		require.NoError(t, err)
		_, err = r.Add(pdu.PDV{ContextID: 1, Last: true, Data: []byte{1}})
		assert.ErrorIs(t, err, dicomerrors.ErrProtocolViolation)
	})

	t.Run("command after command complete", func(t *testing.T) {
		r := NewReassembler()
		_, err := r.Add(pdu.PDV{ContextID: 1, Command: true, Last: true, Data: cmd})
		require.NoError(t, err)
		_, err = r.Add(pdu.PDV{ContextID: 1, Command: true, Last: true, Data: cmd})
		assert.ErrorIs(t, err, dicomerrors.ErrProtocolViolation)
	})

	t.Run("data when none declared", func(t *testing.T) {
		r := NewReassembler()
		msg, err := r.Add(pdu.PDV{ContextID: 1, Command: true, Last: true, Data: echo})
		require.NoError(t, err)
		require.NotNil(t, msg)
		_, err = r.Add(pdu.PDV{ContextID: 1, Last: true, Data: []byte{1}})
		assert.ErrorIs(t, err, dicomerrors.ErrProtocolViolation)
	})

	t.Run("undecodable command", func(t *testing.T) {
		r := NewReassembler()
		_, err := r.Add(pdu.PDV{ContextID: 1, Command: true, Last: true, Data: []byte{0, 0, 0}})
		assert.ErrorIs(t, err, dicomerrors.ErrInvalidMessage)
		assert.Zero(t, r.Pending())
	})
}

func TestReassemblerMessageLimit(t *testing.T) {
	cmd, err := EncodeCommand(storeRequest(t, 1))
	require.NoError(t, err)
	limit := len(cmd) + 100

	t.Run("at limit", func(t *testing.T) {
		pdus, err := Fragment(1, cmd, pattern(100), 64)
		require.NoError(t, err)
		msgs := feed(t, NewReassembler(WithMaxMessageLength(limit)), pdus)
		require.Len(t, msgs, 1)
		assert.Equal(t, pattern(100), msgs[0].Data)
	})

	t.Run("data past limit", func(t *testing.T) {
		pdus, err := Fragment(1, cmd, pattern(101), 64)
		require.NoError(t, err)
		r := NewReassembler(WithMaxMessageLength(limit))
		var addErr error
		for _, p := range pdus {
			for _, v := range p.Items {
				if _, addErr = r.Add(v); addErr != nil {
					break
				}
			}
			if addErr != nil {
				break
			}
		}
		assert.ErrorIs(t, addErr, dicomerrors.ErrProtocolViolation)
		assert.Contains(t, addErr.Error(), "exceeds")
		assert.Zero(t, r.Pending())
	})

	t.Run("command past limit", func(t *testing.T) {
		r := NewReassembler(WithMaxMessageLength(len(cmd) - 1))
		_, err := r.Add(pdu.PDV{ContextID: 1, Command: true, Last: true, Data: cmd})
		assert.ErrorIs(t, err, dicomerrors.ErrProtocolViolation)
		assert.Zero(t, r.Pending())
	})

	t.Run("unlimited by default", func(t *testing.T) {
		pdus, err := Fragment(1, cmd, pattern(5000), 1000)
		require.NoError(t, err)
		require.Len(t, feed(t, NewReassembler(WithMaxMessageLength(0)), pdus), 1)
	})
}

func TestReassemblerDiscard(t *testing.T) {
	r := NewReassembler()
	assert.NoError(t, r.Discard())

	pdus, err := EncodeMessage(1, storeRequest(t, 1), pattern(500), 64)
	require.NoError(t, err)
	require.Greater(t, len(pdus), 2)
	// everything but the final PDU
	for _, p := range pdus[:len(pdus)-1] {
		for _, v := range p.Items {
			msg, err := r.Add(v)
			require.NoError(t, err)
			require.Nil(t, msg)
		}
	}
	assert.Equal(t, 1, r.Pending())

	err = r.Discard()
	assert.ErrorIs(t, err, dicomerrors.ErrIncompleteMessage)
	assert.Zero(t, r.Pending())
	assert.NoError(t, r.Discard())
}
