// Package dimse encodes DIMSE command sets and splits and joins messages
// across P-DATA-TF presentation data values.
package dimse

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Command group (0000) element numbers
const (
	tagGroupLength               uint16 = 0x0000
	tagAffectedSOPClassUID       uint16 = 0x0002
	tagRequestedSOPClassUID      uint16 = 0x0003
	tagCommandField              uint16 = 0x0100
	tagMessageID                 uint16 = 0x0110
	tagMessageIDBeingRespondedTo uint16 = 0x0120
	tagMoveDestination           uint16 = 0x0600
	tagPriority                  uint16 = 0x0700
	tagCommandDataSetType        uint16 = 0x0800
	tagStatus                    uint16 = 0x0900
	tagAffectedSOPInstanceUID    uint16 = 0x1000
	tagRemainingSuboperations    uint16 = 0x1020
	tagCompletedSuboperations    uint16 = 0x1021
	tagFailedSuboperations       uint16 = 0x1022
	tagWarningSuboperations      uint16 = 0x1023
)

// EncodeCommand encodes a DIMSE command set using Implicit VR Little Endian.
// Requests always carry a Message ID, responses a Status.
func EncodeCommand(msg *types.Message) ([]byte, error) {
	if !msg.CommandField.Valid() {
		return nil, errors.Wrapf(dicomerrors.ErrInvalidMessage, "command field %s", msg.CommandField)
	}

	buf := make([]byte, 0, 256)
	buf = AppendImplicitElement(buf, 0x0000, tagGroupLength, make([]byte, 4))
	lengthPos := len(buf) - 4

	buf = appendUID(buf, tagAffectedSOPClassUID, msg.AffectedSOPClassUID)
	buf = appendUID(buf, tagRequestedSOPClassUID, msg.RequestedSOPClassUID)
	buf = appendUint16(buf, tagCommandField, uint16(msg.CommandField))

	isRequest := msg.CommandField.IsRequest()
	if isRequest && msg.CommandField != types.CCancelRQ {
		buf = appendUint16(buf, tagMessageID, msg.MessageID)
	}
	if !isRequest || msg.CommandField == types.CCancelRQ {
		buf = appendUint16(buf, tagMessageIDBeingRespondedTo, msg.MessageIDBeingRespondedTo)
	}

	if msg.MoveDestination != "" {
		dest := []byte(msg.MoveDestination)
		if len(dest)%2 == 1 {
			dest = append(dest, ' ')
		}
		buf = AppendImplicitElement(buf, 0x0000, tagMoveDestination, dest)
	}

	switch msg.CommandField {
	case types.CStoreRQ, types.CFindRQ, types.CGetRQ, types.CMoveRQ:
		buf = appendUint16(buf, tagPriority, msg.Priority)
	}

	buf = appendUint16(buf, tagCommandDataSetType, msg.CommandDataSetType)

	if !isRequest {
		buf = appendUint16(buf, tagStatus, msg.Status)
	}

	buf = appendUID(buf, tagAffectedSOPInstanceUID, msg.AffectedSOPInstanceUID)
	buf = appendCounter(buf, tagRemainingSuboperations, msg.NumberOfRemainingSuboperations)
	buf = appendCounter(buf, tagCompletedSuboperations, msg.NumberOfCompletedSuboperations)
	buf = appendCounter(buf, tagFailedSuboperations, msg.NumberOfFailedSuboperations)
	buf = appendCounter(buf, tagWarningSuboperations, msg.NumberOfWarningSuboperations)

	binary.LittleEndian.PutUint32(buf[lengthPos:lengthPos+4], uint32(len(buf)-lengthPos-4))
	return buf, nil
}

// AppendImplicitElement appends a DICOM element using Implicit VR (no VR field)
func AppendImplicitElement(buf []byte, group, element uint16, value []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, group)
	buf = binary.LittleEndian.AppendUint16(buf, element)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
	return append(buf, value...)
}

func appendUint16(buf []byte, element, v uint16) []byte {
	return AppendImplicitElement(buf, 0x0000, element, binary.LittleEndian.AppendUint16(nil, v))
}

func appendCounter(buf []byte, element uint16, v *uint16) []byte {
	if v == nil {
		return buf
	}
	return appendUint16(buf, element, *v)
}

// appendUID writes a non-empty UID padded with NUL to even length.
func appendUID(buf []byte, element uint16, uid string) []byte {
	if uid == "" {
		return buf
	}
	value := []byte(uid)
	if len(value)%2 == 1 {
		value = append(value, 0x00)
	}
	return AppendImplicitElement(buf, 0x0000, element, value)
}

// DecodeCommand decodes a DIMSE command set. Elements outside group 0000
// and unknown command elements are skipped. A truncated element, a missing
// Command Field or one outside the supported set is an error.
func DecodeCommand(data []byte) (*types.Message, error) {
	msg := &types.Message{
		CommandDataSetType: types.NoDataSet,
	}
	haveCommand := false
	offset := 0
	var err error

	for offset < len(data) {
		if len(data)-offset < 8 {
			return nil, errors.Wrapf(dicomerrors.ErrInvalidMessage, "truncated element header at offset %d", offset)
		}
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		if uint64(length) > uint64(len(data)-offset-8) {
			return nil, errors.Wrapf(dicomerrors.ErrInvalidMessage, "element (%04X,%04X) length %d exceeds command set", group, element, length)
		}
		value := data[offset+8 : offset+8+int(length)]
		offset += 8 + int(length)

		if group != 0x0000 {
			continue
		}

		switch element {
		case tagAffectedSOPClassUID:
			msg.AffectedSOPClassUID = trimValue(value)
		case tagRequestedSOPClassUID:
			msg.RequestedSOPClassUID = trimValue(value)
		case tagCommandField:
			v, err := readUint16(element, value)
			if err != nil {
				return nil, err
			}
			msg.CommandField = types.CommandField(v)
			haveCommand = true
		case tagMessageID:
			v, err := readUint16(element, value)
			if err != nil {
				return nil, err
			}
			msg.MessageID = v
		case tagMessageIDBeingRespondedTo:
			v, err := readUint16(element, value)
			if err != nil {
				return nil, err
			}
			msg.MessageIDBeingRespondedTo = v
		case tagMoveDestination:
			msg.MoveDestination = trimValue(value)
		case tagPriority:
			v, err := readUint16(element, value)
			if err != nil {
				return nil, err
			}
			msg.Priority = v
		case tagCommandDataSetType:
			v, err := readUint16(element, value)
			if err != nil {
				return nil, err
			}
			msg.CommandDataSetType = v
		case tagStatus:
			v, err := readUint16(element, value)
			if err != nil {
				return nil, err
			}
			msg.Status = v
		case tagAffectedSOPInstanceUID:
			msg.AffectedSOPInstanceUID = trimValue(value)
		case tagRemainingSuboperations:
			if msg.NumberOfRemainingSuboperations, err = readCounter(element, value); err != nil {
				return nil, err
			}
		case tagCompletedSuboperations:
			if msg.NumberOfCompletedSuboperations, err = readCounter(element, value); err != nil {
				return nil, err
			}
		case tagFailedSuboperations:
			if msg.NumberOfFailedSuboperations, err = readCounter(element, value); err != nil {
				return nil, err
			}
		case tagWarningSuboperations:
			if msg.NumberOfWarningSuboperations, err = readCounter(element, value); err != nil {
				return nil, err
			}
		}
	}

	if !haveCommand {
		return nil, errors.Wrap(dicomerrors.ErrInvalidMessage, "command set has no Command Field")
	}
	if !msg.CommandField.Valid() {
		return nil, errors.Wrapf(dicomerrors.ErrInvalidMessage, "unsupported command field %s", msg.CommandField)
	}
	return msg, nil
}

func readUint16(element uint16, value []byte) (uint16, error) {
	if len(value) != 2 {
		return 0, errors.Wrapf(dicomerrors.ErrInvalidMessage, "element (0000,%04X) has %d bytes, want 2", element, len(value))
	}
	return binary.LittleEndian.Uint16(value), nil
}

func readCounter(element uint16, value []byte) (*uint16, error) {
	v, err := readUint16(element, value)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func trimValue(value []byte) string {
	return strings.TrimRight(string(value), "\x00 ")
}
