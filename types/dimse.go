package types

import "fmt"

// CommandField identifies a DIMSE command. The set is closed: a value that is
// not one of the constants below is rejected rather than dispatched.
type CommandField uint16

const (
	CStoreRQ  CommandField = 0x0001
	CStoreRSP CommandField = 0x8001
	CGetRQ    CommandField = 0x0010
	CGetRSP   CommandField = 0x8010
	CFindRQ   CommandField = 0x0020
	CFindRSP  CommandField = 0x8020
	CMoveRQ   CommandField = 0x0021
	CMoveRSP  CommandField = 0x8021
	CEchoRQ   CommandField = 0x0030
	CEchoRSP  CommandField = 0x8030
	CCancelRQ CommandField = 0x0FFF
)

var commandNames = map[CommandField]string{
	CStoreRQ:  "C-STORE-RQ",
	CStoreRSP: "C-STORE-RSP",
	CGetRQ:    "C-GET-RQ",
	CGetRSP:   "C-GET-RSP",
	CFindRQ:   "C-FIND-RQ",
	CFindRSP:  "C-FIND-RSP",
	CMoveRQ:   "C-MOVE-RQ",
	CMoveRSP:  "C-MOVE-RSP",
	CEchoRQ:   "C-ECHO-RQ",
	CEchoRSP:  "C-ECHO-RSP",
	CCancelRQ: "C-CANCEL-RQ",
}

func (c CommandField) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(c))
}

// Valid reports whether c belongs to the supported command set.
func (c CommandField) Valid() bool {
	_, ok := commandNames[c]
	return ok
}

func (c CommandField) IsRequest() bool {
	return c.Valid() && c&0x8000 == 0
}

func (c CommandField) IsResponse() bool {
	return c.Valid() && c&0x8000 != 0
}

// Response returns the response command paired with request c. C-CANCEL-RQ
// and responses have no pair and yield 0.
func (c CommandField) Response() CommandField {
	if !c.IsRequest() || c == CCancelRQ {
		return 0
	}
	return c | 0x8000
}

// RequestCommands lists the request half of the command set.
func RequestCommands() []CommandField {
	return []CommandField{CEchoRQ, CStoreRQ, CFindRQ, CGetRQ, CMoveRQ, CCancelRQ}
}

// DIMSE Status codes
const (
	StatusSuccess                       uint16 = 0x0000
	StatusPending                       uint16 = 0xFF00
	StatusPendingWarning                uint16 = 0xFF01
	StatusCancel                        uint16 = 0xFE00
	StatusFailure                       uint16 = 0xC000
	StatusOutOfResources                uint16 = 0xA700
	StatusSOPClassNotSupported          uint16 = 0x0122
	StatusUnrecognizedOperation         uint16 = 0x0211
	StatusSubOperationsCompleteWarnings uint16 = 0xB000
)

// IsPendingStatus reports whether more responses follow one carrying s.
func IsPendingStatus(s uint16) bool {
	return s == StatusPending || s == StatusPendingWarning
}

// Command Data Set Type values. Anything other than NoDataSet means a data set follows.
const (
	DataSetPresent uint16 = 0x0000
	NoDataSet      uint16 = 0x0101
)

// Priority values
const (
	PriorityMedium uint16 = 0x0000
	PriorityHigh   uint16 = 0x0001
	PriorityLow    uint16 = 0x0002
)

// Message represents a parsed DIMSE command
type Message struct {
	CommandField              CommandField
	MessageID                 uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	RequestedSOPClassUID      string
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	MessageIDBeingRespondedTo uint16
	MoveDestination           string
	TransferSyntaxUID         string // negotiated for the context the message travelled on; not encoded

	// C-MOVE and C-GET response counters
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

func (m *Message) HasDataSet() bool {
	return m.CommandDataSetType != NoDataSet
}

// IsPending reports whether m is an intermediate response.
func (m *Message) IsPending() bool {
	return m.CommandField.IsResponse() && IsPendingStatus(m.Status)
}

// SOPClassUID returns the affected SOP class, falling back to the requested one.
func (m *Message) SOPClassUID() string {
	if m.AffectedSOPClassUID != "" {
		return m.AffectedSOPClassUID
	}
	return m.RequestedSOPClassUID
}

// NewResponse builds a data-set-less response to req carrying status.
func NewResponse(req *Message, status uint16) *Message {
	return &Message{
		CommandField:              req.CommandField.Response(),
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    req.AffectedSOPInstanceUID,
		CommandDataSetType:        NoDataSet,
		Status:                    status,
	}
}
