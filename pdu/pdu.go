// Package pdu models the DICOM upper layer protocol data units and encodes
// them to and from the wire.
package pdu

import "fmt"

// Type is the first byte of every PDU.
type Type byte

const (
	TypeAssociateRQ Type = 0x01
	TypeAssociateAC Type = 0x02
	TypeAssociateRJ Type = 0x03
	TypePDataTF     Type = 0x04
	TypeReleaseRQ   Type = 0x05
	TypeReleaseRP   Type = 0x06
	TypeAbort       Type = 0x07
)

func (t Type) String() string {
	switch t {
	case TypeAssociateRQ:
		return "A-ASSOCIATE-RQ"
	case TypeAssociateAC:
		return "A-ASSOCIATE-AC"
	case TypeAssociateRJ:
		return "A-ASSOCIATE-RJ"
	case TypePDataTF:
		return "P-DATA-TF"
	case TypeReleaseRQ:
		return "A-RELEASE-RQ"
	case TypeReleaseRP:
		return "A-RELEASE-RP"
	case TypeAbort:
		return "A-ABORT"
	default:
		return fmt.Sprintf("PDU(0x%02X)", byte(t))
	}
}

const (
	// HeaderLength is the type, reserved and length fields preceding every payload.
	HeaderLength = 6
	// PDVHeaderLength is the length, context ID and control byte preceding a PDV payload.
	PDVHeaderLength = 6
	// MaxControlPDULength caps the payload accepted for any PDU other than P-DATA-TF.
	MaxControlPDULength = 1 << 20
	// ProtocolVersion is the only upper layer protocol version.
	ProtocolVersion uint16 = 0x0001
	// MaxAETitleLength is the width of the AE title fields.
	MaxAETitleLength = 16
)

// PDU is one of the seven upper layer protocol data units. The set is closed;
// only types in this package implement it.
type PDU interface {
	Type() Type
	isPDU()
}

// PresentationResult is the outcome of one presentation context negotiation.
type PresentationResult byte

const (
	ResultAcceptance                   PresentationResult = 0
	ResultUserRejection                PresentationResult = 1
	ResultNoReason                     PresentationResult = 2
	ResultAbstractSyntaxNotSupported   PresentationResult = 3
	ResultTransferSyntaxesNotSupported PresentationResult = 4
)

func (r PresentationResult) String() string {
	switch r {
	case ResultAcceptance:
		return "acceptance"
	case ResultUserRejection:
		return "user-rejection"
	case ResultNoReason:
		return "no-reason"
	case ResultAbstractSyntaxNotSupported:
		return "abstract-syntax-not-supported"
	case ResultTransferSyntaxesNotSupported:
		return "transfer-syntaxes-not-supported"
	default:
		return fmt.Sprintf("result(%d)", byte(r))
	}
}

// PresentationContextRQ is a proposed presentation context.
type PresentationContextRQ struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
}

// PresentationContextAC is the acceptor's answer to one proposed context.
// TransferSyntax is empty for rejected contexts.
type PresentationContextAC struct {
	ID             byte
	Result         PresentationResult
	TransferSyntax string
}

// AsyncOperationsWindow carries the outstanding operation limits. Zero means unlimited.
type AsyncOperationsWindow struct {
	MaxOpsInvoked   uint16
	MaxOpsPerformed uint16
}

// RoleSelection proposes or confirms SCU/SCP roles for one SOP class.
type RoleSelection struct {
	SOPClassUID string
	SCURole     bool
	SCPRole     bool
}

// ExtendedNegotiation carries service-class specific application information.
type ExtendedNegotiation struct {
	SOPClassUID string
	Info        []byte
}

// UserInformation is the user information item of A-ASSOCIATE-RQ/AC.
type UserInformation struct {
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	AsyncOps                  *AsyncOperationsWindow
	RoleSelections            []RoleSelection
	ExtendedNegotiations      []ExtendedNegotiation
}

// AssociateRQ is an A-ASSOCIATE-RQ.
type AssociateRQ struct {
	ProtocolVersion      uint16
	CalledAETitle        string
	CallingAETitle       string
	ApplicationContext   string
	PresentationContexts []PresentationContextRQ
	UserInfo             UserInformation
}

// AssociateAC is an A-ASSOCIATE-AC. The AE titles echo the request.
type AssociateAC struct {
	ProtocolVersion      uint16
	CalledAETitle        string
	CallingAETitle       string
	ApplicationContext   string
	PresentationContexts []PresentationContextAC
	UserInfo             UserInformation
}

// AssociateRJ is an A-ASSOCIATE-RJ. Result, Source and Reason carry the
// values of the association reject enums in the errors package.
type AssociateRJ struct {
	Result byte
	Source byte
	Reason byte
}

// PDV is one presentation data value item.
type PDV struct {
	ContextID byte
	Command   bool
	Last      bool
	Data      []byte
}

// PDataTF is a P-DATA-TF carrying one or more PDVs.
type PDataTF struct {
	Items []PDV
}

// Length returns the value of the PDU length field once encoded.
func (p *PDataTF) Length() uint32 {
	var n uint32
	for _, v := range p.Items {
		n += PDVHeaderLength + uint32(len(v.Data))
	}
	return n
}

type ReleaseRQ struct{}

type ReleaseRP struct{}

// AbortSource identifies who issued an A-ABORT.
type AbortSource byte

const (
	AbortSourceServiceUser     AbortSource = 0x00
	AbortSourceServiceProvider AbortSource = 0x02
)

func (s AbortSource) String() string {
	switch s {
	case AbortSourceServiceUser:
		return "service-user"
	case AbortSourceServiceProvider:
		return "service-provider"
	default:
		return fmt.Sprintf("source(%d)", byte(s))
	}
}

// AbortReason is only significant when the source is the service provider.
type AbortReason byte

const (
	AbortReasonNotSpecified             AbortReason = 0x00
	AbortReasonUnrecognizedPDU          AbortReason = 0x01
	AbortReasonUnexpectedPDU            AbortReason = 0x02
	AbortReasonUnrecognizedPDUParameter AbortReason = 0x04
	AbortReasonUnexpectedPDUParameter   AbortReason = 0x05
	AbortReasonInvalidPDUParameterValue AbortReason = 0x06
)

func (r AbortReason) String() string {
	switch r {
	case AbortReasonNotSpecified:
		return "not-specified"
	case AbortReasonUnrecognizedPDU:
		return "unrecognized-pdu"
	case AbortReasonUnexpectedPDU:
		return "unexpected-pdu"
	case AbortReasonUnrecognizedPDUParameter:
		return "unrecognized-pdu-parameter"
	case AbortReasonUnexpectedPDUParameter:
		return "unexpected-pdu-parameter"
	case AbortReasonInvalidPDUParameterValue:
		return "invalid-pdu-parameter-value"
	default:
		return fmt.Sprintf("reason(%d)", byte(r))
	}
}

// Abort is an A-ABORT.
type Abort struct {
	Source AbortSource
	Reason AbortReason
}

func (*AssociateRQ) Type() Type { return TypeAssociateRQ }
func (*AssociateAC) Type() Type { return TypeAssociateAC }
func (*AssociateRJ) Type() Type { return TypeAssociateRJ }
func (*PDataTF) Type() Type     { return TypePDataTF }
func (*ReleaseRQ) Type() Type   { return TypeReleaseRQ }
func (*ReleaseRP) Type() Type   { return TypeReleaseRP }
func (*Abort) Type() Type       { return TypeAbort }

func (*AssociateRQ) isPDU() {}
func (*AssociateAC) isPDU() {}
func (*AssociateRJ) isPDU() {}
func (*PDataTF) isPDU()     {}
func (*ReleaseRQ) isPDU()   {}
func (*ReleaseRP) isPDU()   {}
func (*Abort) isPDU()       {}
