package pdu

import (
	"encoding/binary"
	"math"
	"strings"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
)

// Variable item types of A-ASSOCIATE-RQ/AC.
const (
	itemApplicationContext    byte = 0x10
	itemPresentationContextRQ byte = 0x20
	itemPresentationContextAC byte = 0x21
	itemAbstractSyntax        byte = 0x30
	itemTransferSyntax        byte = 0x40
	itemUserInformation       byte = 0x50
)

// User information sub-item types.
const (
	subItemMaxLength                 byte = 0x51
	subItemImplementationClassUID    byte = 0x52
	subItemAsyncOperationsWindow     byte = 0x53
	subItemRoleSelection             byte = 0x54
	subItemImplementationVersionName byte = 0x55
	subItemExtendedNegotiation       byte = 0x56
)

// itemWriter appends variable items for one PDU. The first value too long
// for a uint16 length field is kept in err and later appends are ignored.
type itemWriter struct {
	pduType byte
	err     error
}

func (w *itemWriter) fail(itemType byte, n int) {
	if w.err == nil {
		w.err = dicomerrors.NewPDUError(w.pduType, "item 0x%02X value of %d bytes exceeds %d", itemType, n, math.MaxUint16)
	}
}

// item writes a type/reserved/uint16-length header followed by value.
func (w *itemWriter) item(b []byte, itemType byte, value []byte) []byte {
	if len(value) > math.MaxUint16 {
		w.fail(itemType, len(value))
		return b
	}
	b = append(b, itemType, 0x00)
	b = binary.BigEndian.AppendUint16(b, uint16(len(value)))
	return append(b, value...)
}

// stringItem writes s unpadded; the item length carries the exact size.
func (w *itemWriter) stringItem(b []byte, itemType byte, s string) []byte {
	return w.item(b, itemType, []byte(s))
}

func (w *itemWriter) lengthPrefixed(b []byte, itemType byte, s []byte) []byte {
	if len(s) > math.MaxUint16 {
		w.fail(itemType, len(s))
		return b
	}
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func (w *itemWriter) presentationContextRQ(b []byte, pc PresentationContextRQ) []byte {
	var v []byte
	v = append(v, pc.ID, 0x00, 0x00, 0x00)
	v = w.stringItem(v, itemAbstractSyntax, pc.AbstractSyntax)
	for _, ts := range pc.TransferSyntaxes {
		v = w.stringItem(v, itemTransferSyntax, ts)
	}
	return w.item(b, itemPresentationContextRQ, v)
}

func (w *itemWriter) presentationContextAC(b []byte, pc PresentationContextAC) []byte {
	v := []byte{pc.ID, 0x00, byte(pc.Result), 0x00}
	if pc.TransferSyntax != "" {
		v = w.stringItem(v, itemTransferSyntax, pc.TransferSyntax)
	}
	return w.item(b, itemPresentationContextAC, v)
}

func (w *itemWriter) userInformation(b []byte, ui UserInformation) []byte {
	var v []byte

	v = w.item(v, subItemMaxLength, binary.BigEndian.AppendUint32(nil, ui.MaxPDULength))
	if ui.ImplementationClassUID != "" {
		v = w.stringItem(v, subItemImplementationClassUID, ui.ImplementationClassUID)
	}
	if ui.AsyncOps != nil {
		a := binary.BigEndian.AppendUint16(nil, ui.AsyncOps.MaxOpsInvoked)
		a = binary.BigEndian.AppendUint16(a, ui.AsyncOps.MaxOpsPerformed)
		v = w.item(v, subItemAsyncOperationsWindow, a)
	}
	for _, rs := range ui.RoleSelections {
		r := w.lengthPrefixed(nil, subItemRoleSelection, []byte(rs.SOPClassUID))
		r = append(r, boolByte(rs.SCURole), boolByte(rs.SCPRole))
		v = w.item(v, subItemRoleSelection, r)
	}
	if ui.ImplementationVersionName != "" {
		v = w.stringItem(v, subItemImplementationVersionName, ui.ImplementationVersionName)
	}
	for _, en := range ui.ExtendedNegotiations {
		e := w.lengthPrefixed(nil, subItemExtendedNegotiation, []byte(en.SOPClassUID))
		e = append(e, en.Info...)
		v = w.item(v, subItemExtendedNegotiation, e)
	}

	return w.item(b, itemUserInformation, v)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// itemReader walks a sequence of type/reserved/length items.
type itemReader struct {
	pduType byte
	data    []byte
	off     int
}

// next returns the type and value of the following item. ok is false at the
// end of the sequence; err is set when an item overruns the buffer.
func (r *itemReader) next() (itemType byte, value []byte, ok bool, err error) {
	if r.off >= len(r.data) {
		return 0, nil, false, nil
	}
	if len(r.data)-r.off < 4 {
		return 0, nil, false, dicomerrors.NewPDUError(r.pduType, "truncated item header at offset %d", r.off)
	}
	itemType = r.data[r.off]
	length := int(binary.BigEndian.Uint16(r.data[r.off+2 : r.off+4]))
	start := r.off + 4
	if start+length > len(r.data) {
		return 0, nil, false, dicomerrors.NewPDUError(r.pduType, "item 0x%02X length %d exceeds remaining %d bytes", itemType, length, len(r.data)-start)
	}
	r.off = start + length
	return itemType, r.data[start : start+length], true, nil
}

// trimUID drops the trailing NUL or space padding some peers leave on UIDs.
func trimUID(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}

func parsePresentationContextRQ(pduType byte, value []byte) (PresentationContextRQ, error) {
	if len(value) < 4 {
		return PresentationContextRQ{}, dicomerrors.NewPDUError(pduType, "presentation context item too short: %d bytes", len(value))
	}
	pc := PresentationContextRQ{ID: value[0]}
	r := itemReader{pduType: pduType, data: value[4:]}
	for {
		t, v, ok, err := r.next()
		if err != nil {
			return PresentationContextRQ{}, err
		}
		if !ok {
			break
		}
		switch t {
		case itemAbstractSyntax:
			pc.AbstractSyntax = trimUID(v)
		case itemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, trimUID(v))
		}
	}
	return pc, nil
}

func parsePresentationContextAC(pduType byte, value []byte) (PresentationContextAC, error) {
	if len(value) < 4 {
		return PresentationContextAC{}, dicomerrors.NewPDUError(pduType, "presentation context item too short: %d bytes", len(value))
	}
	pc := PresentationContextAC{ID: value[0], Result: PresentationResult(value[2])}
	r := itemReader{pduType: pduType, data: value[4:]}
	for {
		t, v, ok, err := r.next()
		if err != nil {
			return PresentationContextAC{}, err
		}
		if !ok {
			break
		}
		if t == itemTransferSyntax {
			pc.TransferSyntax = trimUID(v)
		}
	}
	return pc, nil
}

func parseUserInformation(pduType byte, value []byte) (UserInformation, error) {
	var ui UserInformation
	r := itemReader{pduType: pduType, data: value}
	for {
		t, v, ok, err := r.next()
		if err != nil {
			return UserInformation{}, err
		}
		if !ok {
			return ui, nil
		}
		switch t {
		case subItemMaxLength:
			if len(v) != 4 {
				return UserInformation{}, dicomerrors.NewPDUError(pduType, "maximum length sub-item has %d bytes", len(v))
			}
			ui.MaxPDULength = binary.BigEndian.Uint32(v)
		case subItemImplementationClassUID:
			ui.ImplementationClassUID = trimUID(v)
		case subItemImplementationVersionName:
			ui.ImplementationVersionName = strings.TrimRight(string(v), "\x00 ")
		case subItemAsyncOperationsWindow:
			if len(v) != 4 {
				return UserInformation{}, dicomerrors.NewPDUError(pduType, "asynchronous operations window sub-item has %d bytes", len(v))
			}
			ui.AsyncOps = &AsyncOperationsWindow{
				MaxOpsInvoked:   binary.BigEndian.Uint16(v[0:2]),
				MaxOpsPerformed: binary.BigEndian.Uint16(v[2:4]),
			}
		case subItemRoleSelection:
			uid, rest, err := splitLengthPrefixed(pduType, v)
			if err != nil {
				return UserInformation{}, err
			}
			if len(rest) != 2 {
				return UserInformation{}, dicomerrors.NewPDUError(pduType, "role selection sub-item has %d trailing bytes", len(rest))
			}
			ui.RoleSelections = append(ui.RoleSelections, RoleSelection{
				SOPClassUID: uid,
				SCURole:     rest[0] == 1,
				SCPRole:     rest[1] == 1,
			})
		case subItemExtendedNegotiation:
			uid, rest, err := splitLengthPrefixed(pduType, v)
			if err != nil {
				return UserInformation{}, err
			}
			ui.ExtendedNegotiations = append(ui.ExtendedNegotiations, ExtendedNegotiation{
				SOPClassUID: uid,
				Info:        append([]byte{}, rest...),
			})
		}
	}
}

func splitLengthPrefixed(pduType byte, v []byte) (string, []byte, error) {
	if len(v) < 2 {
		return "", nil, dicomerrors.NewPDUError(pduType, "sub-item too short: %d bytes", len(v))
	}
	n := int(binary.BigEndian.Uint16(v[0:2]))
	if 2+n > len(v) {
		return "", nil, dicomerrors.NewPDUError(pduType, "UID length %d exceeds sub-item", n)
	}
	return trimUID(v[2 : 2+n]), v[2+n:], nil
}
