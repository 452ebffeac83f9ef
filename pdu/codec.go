package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
)

// Encode serializes p including its six byte header.
func Encode(p PDU) ([]byte, error) {
	b := []byte{byte(p.Type()), 0x00, 0, 0, 0, 0}

	var err error
	switch v := p.(type) {
	case *AssociateRQ:
		b, err = appendAssociateHeader(b, v.ProtocolVersion, v.CalledAETitle, v.CallingAETitle)
		if err != nil {
			return nil, err
		}
		w := itemWriter{pduType: byte(TypeAssociateRQ)}
		b = w.stringItem(b, itemApplicationContext, v.ApplicationContext)
		for _, pc := range v.PresentationContexts {
			b = w.presentationContextRQ(b, pc)
		}
		b = w.userInformation(b, v.UserInfo)
		if w.err != nil {
			return nil, w.err
		}
	case *AssociateAC:
		b, err = appendAssociateHeader(b, v.ProtocolVersion, v.CalledAETitle, v.CallingAETitle)
		if err != nil {
			return nil, err
		}
		w := itemWriter{pduType: byte(TypeAssociateAC)}
		b = w.stringItem(b, itemApplicationContext, v.ApplicationContext)
		for _, pc := range v.PresentationContexts {
			b = w.presentationContextAC(b, pc)
		}
		b = w.userInformation(b, v.UserInfo)
		if w.err != nil {
			return nil, w.err
		}
	case *AssociateRJ:
		b = append(b, 0x00, v.Result, v.Source, v.Reason)
	case *PDataTF:
		if len(v.Items) == 0 {
			return nil, dicomerrors.NewPDUError(byte(TypePDataTF), "no presentation data values")
		}
		for _, pdv := range v.Items {
			b = binary.BigEndian.AppendUint32(b, uint32(len(pdv.Data)+2))
			b = append(b, pdv.ContextID, pdvControl(pdv))
			b = append(b, pdv.Data...)
		}
	case *ReleaseRQ, *ReleaseRP:
		b = append(b, 0, 0, 0, 0)
	case *Abort:
		b = append(b, 0x00, 0x00, byte(v.Source), byte(v.Reason))
	default:
		return nil, errors.Errorf("pdu: cannot encode %T", p)
	}

	binary.BigEndian.PutUint32(b[2:6], uint32(len(b)-HeaderLength))
	return b, nil
}

func pdvControl(pdv PDV) byte {
	var c byte
	if pdv.Command {
		c |= 0x01
	}
	if pdv.Last {
		c |= 0x02
	}
	return c
}

func appendAssociateHeader(b []byte, version uint16, called, calling string) ([]byte, error) {
	if version == 0 {
		version = ProtocolVersion
	}
	calledField, err := aeTitleField(called)
	if err != nil {
		return nil, err
	}
	callingField, err := aeTitleField(calling)
	if err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint16(b, version)
	b = append(b, 0x00, 0x00)
	b = append(b, calledField...)
	b = append(b, callingField...)
	return append(b, make([]byte, 32)...), nil
}

// aeTitleField pads title with spaces to the fixed field width.
func aeTitleField(title string) ([]byte, error) {
	if len(title) > MaxAETitleLength {
		return nil, errors.Wrapf(dicomerrors.ErrMalformedPDU, "AE title %q exceeds %d characters", title, MaxAETitleLength)
	}
	field := bytes.Repeat([]byte{' '}, MaxAETitleLength)
	copy(field, title)
	return field, nil
}

// Decode parses one complete PDU, header included.
func Decode(b []byte) (PDU, error) {
	if len(b) < HeaderLength {
		return nil, dicomerrors.NewPDUError(0, "need %d header bytes, have %d", HeaderLength, len(b))
	}
	length := binary.BigEndian.Uint32(b[2:6])
	if uint64(length) != uint64(len(b)-HeaderLength) {
		return nil, dicomerrors.NewPDUError(b[0], "length field %d does not match %d payload bytes", length, len(b)-HeaderLength)
	}
	return decodePayload(Type(b[0]), b[HeaderLength:])
}

func decodePayload(t Type, payload []byte) (PDU, error) {
	switch t {
	case TypeAssociateRQ:
		return decodeAssociateRQ(payload)
	case TypeAssociateAC:
		return decodeAssociateAC(payload)
	case TypeAssociateRJ:
		if len(payload) != 4 {
			return nil, dicomerrors.NewPDUError(byte(t), "payload is %d bytes, want 4", len(payload))
		}
		return &AssociateRJ{Result: payload[1], Source: payload[2], Reason: payload[3]}, nil
	case TypePDataTF:
		return decodePDataTF(payload)
	case TypeReleaseRQ, TypeReleaseRP:
		if len(payload) != 4 {
			return nil, dicomerrors.NewPDUError(byte(t), "payload is %d bytes, want 4", len(payload))
		}
		if t == TypeReleaseRQ {
			return &ReleaseRQ{}, nil
		}
		return &ReleaseRP{}, nil
	case TypeAbort:
		if len(payload) != 4 {
			return nil, dicomerrors.NewPDUError(byte(t), "payload is %d bytes, want 4", len(payload))
		}
		return &Abort{Source: AbortSource(payload[2]), Reason: AbortReason(payload[3])}, nil
	default:
		return nil, dicomerrors.NewUnrecognizedPDUError(byte(t))
	}
}

// associateFixedLength covers protocol version through the reserved block.
const associateFixedLength = 68

type associateCommon struct {
	version         uint16
	called, calling string
	appContext      string
	userInfo        UserInformation
}

func decodeAssociate(t Type, payload []byte, onContext func(byte, []byte) error) (associateCommon, error) {
	var c associateCommon
	if len(payload) < associateFixedLength {
		return c, dicomerrors.NewPDUError(byte(t), "payload is %d bytes, need at least %d", len(payload), associateFixedLength)
	}
	c.version = binary.BigEndian.Uint16(payload[0:2])
	c.called = strings.TrimSpace(string(payload[4:20]))
	c.calling = strings.TrimSpace(string(payload[20:36]))

	r := itemReader{pduType: byte(t), data: payload[associateFixedLength:]}
	for {
		itemType, v, ok, err := r.next()
		if err != nil {
			return c, err
		}
		if !ok {
			return c, nil
		}
		switch itemType {
		case itemApplicationContext:
			c.appContext = trimUID(v)
		case itemUserInformation:
			if c.userInfo, err = parseUserInformation(byte(t), v); err != nil {
				return c, err
			}
		default:
			if err := onContext(itemType, v); err != nil {
				return c, err
			}
		}
	}
}

func decodeAssociateRQ(payload []byte) (*AssociateRQ, error) {
	rq := &AssociateRQ{}
	c, err := decodeAssociate(TypeAssociateRQ, payload, func(itemType byte, v []byte) error {
		if itemType != itemPresentationContextRQ {
			return nil
		}
		pc, err := parsePresentationContextRQ(byte(TypeAssociateRQ), v)
		if err != nil {
			return err
		}
		rq.PresentationContexts = append(rq.PresentationContexts, pc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	rq.ProtocolVersion = c.version
	rq.CalledAETitle = c.called
	rq.CallingAETitle = c.calling
	rq.ApplicationContext = c.appContext
	rq.UserInfo = c.userInfo
	return rq, nil
}

func decodeAssociateAC(payload []byte) (*AssociateAC, error) {
	ac := &AssociateAC{}
	c, err := decodeAssociate(TypeAssociateAC, payload, func(itemType byte, v []byte) error {
		if itemType != itemPresentationContextAC {
			return nil
		}
		pc, err := parsePresentationContextAC(byte(TypeAssociateAC), v)
		if err != nil {
			return err
		}
		ac.PresentationContexts = append(ac.PresentationContexts, pc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ac.ProtocolVersion = c.version
	ac.CalledAETitle = c.called
	ac.CallingAETitle = c.calling
	ac.ApplicationContext = c.appContext
	ac.UserInfo = c.userInfo
	return ac, nil
}

func decodePDataTF(payload []byte) (*PDataTF, error) {
	p := &PDataTF{}
	off := 0
	for off < len(payload) {
		if len(payload)-off < PDVHeaderLength {
			return nil, dicomerrors.NewPDUError(byte(TypePDataTF), "truncated PDV header at offset %d", off)
		}
		itemLen := int(binary.BigEndian.Uint32(payload[off : off+4]))
		if itemLen < 2 {
			return nil, dicomerrors.NewPDUError(byte(TypePDataTF), "PDV length %d below minimum", itemLen)
		}
		end := off + 4 + itemLen
		if end > len(payload) {
			return nil, dicomerrors.NewPDUError(byte(TypePDataTF), "PDV length %d exceeds remaining %d bytes", itemLen, len(payload)-off-4)
		}
		control := payload[off+5]
		pdv := PDV{
			ContextID: payload[off+4],
			Command:   control&0x01 != 0,
			Last:      control&0x02 != 0,
		}
		if end > off+PDVHeaderLength {
			pdv.Data = append([]byte{}, payload[off+PDVHeaderLength:end]...)
		}
		p.Items = append(p.Items, pdv)
		off = end
	}
	if len(p.Items) == 0 {
		return nil, dicomerrors.NewPDUError(byte(TypePDataTF), "no presentation data values")
	}
	return p, nil
}

// Read reads exactly one PDU from r. A P-DATA-TF whose length exceeds
// maxDataLength is rejected; zero disables that check. Every other PDU is
// capped at MaxControlPDULength. A stream that ends before any header byte
// yields io.EOF unchanged.
func Read(r io.Reader, maxDataLength uint32) (PDU, error) {
	var header [HeaderLength]byte
	if n, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF && n == 0 {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, dicomerrors.NewPDUError(header[0], "truncated header: %d of %d bytes", n, HeaderLength)
		}
		return nil, dicomerrors.NewNetworkError("read", err)
	}

	t := Type(header[0])
	length := binary.BigEndian.Uint32(header[2:6])
	switch {
	case t < TypeAssociateRQ || t > TypeAbort:
		return nil, dicomerrors.NewUnrecognizedPDUError(header[0])
	case t == TypePDataTF && maxDataLength > 0 && length > maxDataLength:
		return nil, dicomerrors.NewPDUError(header[0], "length %d exceeds maximum %d", length, maxDataLength)
	case t != TypePDataTF && length > MaxControlPDULength:
		return nil, dicomerrors.NewPDUError(header[0], "length %d exceeds maximum %d", length, MaxControlPDULength)
	}

	payload := make([]byte, length)
	if n, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, dicomerrors.NewPDUError(header[0], "truncated payload: %d of %d bytes", n, length)
		}
		return nil, dicomerrors.NewNetworkError("read", err)
	}
	return decodePayload(t, payload)
}

// Write encodes p and writes it to w in a single call.
func Write(w io.Writer, p PDU) error {
	b, err := Encode(p)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return dicomerrors.NewNetworkError("write", err)
	}
	return nil
}
