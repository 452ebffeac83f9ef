package dimse

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/types"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestFragmentProperties(t *testing.T) {
	commandSizes := []int{1, 2, 9, 10, 200, 4097}
	dataSizes := []int{-1, 0, 1, 10, 11, 1000, 70000}
	maxLengths := []uint32{MinMaxPDULength, 17, 100, 1024, 16384}

	for _, cn := range commandSizes {
		for _, dn := range dataSizes {
			for _, maxLen := range maxLengths {
				t.Run(fmt.Sprintf("cmd=%d/data=%d/max=%d", cn, dn, maxLen), func(t *testing.T) {
					command := pattern(cn)
					var data []byte
					if dn >= 0 {
						data = pattern(dn)
					}

					pdus, err := Fragment(5, command, data, maxLen)
					require.NoError(t, err)

					var gotCommand, gotData []byte
					commandLast, dataLast := 0, 0
					sawData := false
					for _, p := range pdus {
						encoded, err := pdu.Encode(p)
						require.NoError(t, err)
						assert.LessOrEqual(t, uint32(len(encoded)-pdu.HeaderLength), maxLen)
						assert.Equal(t, p.Length(), uint32(len(encoded)-pdu.HeaderLength))

						for _, v := range p.Items {
							assert.Equal(t, byte(5), v.ContextID)
							if v.Command {
								require.False(t, sawData, "command fragment after data")
								require.Zero(t, commandLast, "command fragment after last")
								gotCommand = append(gotCommand, v.Data...)
								if v.Last {
									commandLast++
								}
								continue
							}
							sawData = true
							require.Zero(t, dataLast, "data fragment after last")
							gotData = append(gotData, v.Data...)
							if v.Last {
								dataLast++
							}
						}
					}

					assert.Equal(t, command, gotCommand)
					assert.Equal(t, 1, commandLast)
					if data == nil {
						assert.False(t, sawData)
						assert.Zero(t, dataLast)
					} else {
						assert.True(t, bytes.Equal(data, gotData))
						assert.Equal(t, 1, dataLast)
					}
				})
			}
		}
	}
}

func TestFragmentPacksSmallMessageIntoOnePDU(t *testing.T) {
	pdus, err := Fragment(1, pattern(80), pattern(40), DefaultMaxPDULength)
	require.NoError(t, err)
	require.Len(t, pdus, 1)
	require.Len(t, pdus[0].Items, 2)
	assert.True(t, pdus[0].Items[0].Command)
	assert.True(t, pdus[0].Items[0].Last)
	assert.False(t, pdus[0].Items[1].Command)
	assert.True(t, pdus[0].Items[1].Last)
}

func TestFragmentOversizedDataSet(t *testing.T) {
	const maxLen = 1024
	cmd, err := EncodeCommand(&types.Message{
		CommandField:        types.CStoreRQ,
		MessageID:           1,
		AffectedSOPClassUID: types.CTImageStorage,
		CommandDataSetType:  types.DataSetPresent,
	})
	require.NoError(t, err)
	data := pattern(3*maxLen + 100)

	pdus, err := Fragment(3, cmd, data, maxLen)
	require.NoError(t, err)

	var dataFragments []pdu.PDV
	dataPDUs := 0
	for _, p := range pdus {
		hasData := false
		for _, v := range p.Items {
			if !v.Command {
				dataFragments = append(dataFragments, v)
				hasData = true
			}
		}
		if hasData {
			dataPDUs++
		}
	}

	assert.GreaterOrEqual(t, dataPDUs, 3)
	for i, v := range dataFragments {
		assert.Equal(t, i == len(dataFragments)-1, v.Last, "fragment %d", i)
	}
}

func TestFragmentDefaultsAndLimits(t *testing.T) {
	pdus, err := Fragment(1, pattern(20000), nil, 0)
	require.NoError(t, err)
	for _, p := range pdus {
		assert.LessOrEqual(t, p.Length(), DefaultMaxPDULength)
	}

	_, err = Fragment(1, pattern(10), nil, MinMaxPDULength-1)
	assert.Error(t, err)

	_, err = Fragment(1, nil, pattern(10), DefaultMaxPDULength)
	assert.ErrorIs(t, err, dicomerrors.ErrInvalidMessage)
}

func TestEncodeMessageFollowsData(t *testing.T) {
	cmd := &types.Message{CommandField: types.CStoreRQ, MessageID: 2, AffectedSOPClassUID: types.CTImageStorage, CommandDataSetType: types.NoDataSet}

	pdus, err := EncodeMessage(1, cmd, []byte{1, 2}, DefaultMaxPDULength)
	require.NoError(t, err)
	decoded, err := DecodeCommand(pdus[0].Items[0].Data)
	require.NoError(t, err)
	assert.True(t, decoded.HasDataSet())
	assert.Equal(t, types.NoDataSet, cmd.CommandDataSetType, "caller's message untouched")

	echo := &types.Message{CommandField: types.CEchoRQ, MessageID: 3}
	pdus, err = EncodeMessage(1, echo, nil, DefaultMaxPDULength)
	require.NoError(t, err)
	require.Len(t, pdus[0].Items, 1)
	decoded, err = DecodeCommand(pdus[0].Items[0].Data)
	require.NoError(t, err)
	assert.False(t, decoded.HasDataSet())
}
