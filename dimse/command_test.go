package dimse

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/types"
)

func u16(v uint16) *uint16 { return &v }

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  types.Message
	}{
		{
			name: "C-ECHO-RQ",
			msg: types.Message{
				CommandField:        types.CEchoRQ,
				MessageID:           1,
				AffectedSOPClassUID: types.VerificationSOPClass,
				CommandDataSetType:  types.NoDataSet,
			},
		},
		{
			name: "C-STORE-RQ",
			msg: types.Message{
				CommandField:           types.CStoreRQ,
				MessageID:              7,
				AffectedSOPClassUID:    types.CTImageStorage,
				AffectedSOPInstanceUID: "1.2.3.4.5.6.7",
				Priority:               types.PriorityMedium,
				CommandDataSetType:     types.DataSetPresent,
			},
		},
		{
			name: "C-MOVE-RQ with odd destination",
			msg: types.Message{
				CommandField:        types.CMoveRQ,
				MessageID:           9,
				AffectedSOPClassUID: types.StudyRootQueryRetrieveInformationModelMove,
				MoveDestination:     "ARCHIVE",
				Priority:            types.PriorityHigh,
				CommandDataSetType:  types.DataSetPresent,
			},
		},
		{
			name: "C-GET-RSP with counters",
			msg: types.Message{
				CommandField:                   types.CGetRSP,
				MessageIDBeingRespondedTo:      3,
				AffectedSOPClassUID:            types.StudyRootQueryRetrieveInformationModelGet,
				CommandDataSetType:             types.NoDataSet,
				Status:                         types.StatusPending,
				NumberOfRemainingSuboperations: u16(2),
				NumberOfCompletedSuboperations: u16(1),
				NumberOfFailedSuboperations:    u16(0),
				NumberOfWarningSuboperations:   u16(0),
			},
		},
		{
			name: "C-ECHO-RSP success",
			msg: types.Message{
				CommandField:              types.CEchoRSP,
				MessageIDBeingRespondedTo: 1,
				AffectedSOPClassUID:       types.VerificationSOPClass,
				CommandDataSetType:        types.NoDataSet,
				Status:                    types.StatusSuccess,
			},
		},
		{
			name: "C-CANCEL-RQ",
			msg: types.Message{
				CommandField:              types.CCancelRQ,
				MessageIDBeingRespondedTo: 12,
				CommandDataSetType:        types.NoDataSet,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := EncodeCommand(&tt.msg)
			require.NoError(t, err)
			assert.Zero(t, len(b)%2, "command set has even length")

			groupLength := binary.LittleEndian.Uint32(b[8:12])
			assert.Equal(t, uint32(len(b)-12), groupLength)

			decoded, err := DecodeCommand(b)
			require.NoError(t, err)
			assert.Equal(t, &tt.msg, decoded)
		})
	}
}

func TestEncodeCommandWritesSuccessStatus(t *testing.T) {
	b, err := EncodeCommand(types.NewResponse(&types.Message{CommandField: types.CEchoRQ, MessageID: 4}, types.StatusSuccess))
	require.NoError(t, err)

	found := false
	for off := 0; off+8 <= len(b); {
		element := binary.LittleEndian.Uint16(b[off+2:])
		length := int(binary.LittleEndian.Uint32(b[off+4:]))
		if element == tagStatus {
			found = true
		}
		off += 8 + length
	}
	assert.True(t, found, "status element present even when zero")
}

func TestEncodeCommandRejectsUnknownCommand(t *testing.T) {
	_, err := EncodeCommand(&types.Message{CommandField: 0x1234})
	assert.ErrorIs(t, err, dicomerrors.ErrInvalidMessage)
}

func TestDecodeCommandErrors(t *testing.T) {
	valid, err := EncodeCommand(&types.Message{CommandField: types.CEchoRQ, MessageID: 1, CommandDataSetType: types.NoDataSet})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated header", valid[:len(valid)-3]},
		{"value overruns", func() []byte {
			b := append([]byte{}, valid...)
			binary.LittleEndian.PutUint32(b[4:8], 1000)
			return b
		}()},
		{"missing command field", AppendImplicitElement(nil, 0x0000, tagMessageID, []byte{1, 0})},
		{"unsupported command field", AppendImplicitElement(nil, 0x0000, tagCommandField, []byte{0x34, 0x12})},
		{"wrong width", AppendImplicitElement(nil, 0x0000, tagCommandField, []byte{0x30, 0x00, 0x00, 0x00})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand(tt.data)
			assert.ErrorIs(t, err, dicomerrors.ErrInvalidMessage)
		})
	}
}

func TestDecodeCommandSkipsOtherGroups(t *testing.T) {
	var b []byte
	b = AppendImplicitElement(b, 0x0008, 0x0016, []byte("1.2\x00"))
	b = AppendImplicitElement(b, 0x0000, tagCommandField, []byte{0x30, 0x00})
	b = AppendImplicitElement(b, 0x0000, 0x0999, []byte{1, 2, 3, 4})

	msg, err := DecodeCommand(b)
	require.NoError(t, err)
	assert.Equal(t, types.CEchoRQ, msg.CommandField)
	assert.Equal(t, types.NoDataSet, msg.CommandDataSetType, "absent data set type means none")
}

func TestAppendImplicitElement(t *testing.T) {
	b := AppendImplicitElement(nil, 0x0000, 0x0100, []byte{0x01, 0x80})
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x00, 0x00, 0x01, 0x80}, b)
}
