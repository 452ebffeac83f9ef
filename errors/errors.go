// Package errors defines the failure taxonomy shared by the association engine.
//
// Every typed error matches one of the package sentinels through errors.Is, so
// callers can branch on the category without caring about the concrete type.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrConnectionClosed    = errors.New("dicom: connection closed")
	ErrAssociationRejected = errors.New("dicom: association rejected")
	ErrAssociationClosed   = errors.New("dicom: association closed")
	ErrMalformedPDU        = errors.New("dicom: malformed PDU")
	ErrUnrecognizedPDU     = errors.New("dicom: unrecognized PDU type")
	ErrIncompleteMessage   = errors.New("dicom: incomplete DIMSE message")
	ErrCapacityExceeded    = errors.New("dicom: outstanding operation limit reached")
	ErrPendingOperations   = errors.New("dicom: operations still pending")
	ErrProtocolViolation   = errors.New("dicom: protocol violation")
	ErrNoPresentationCtx   = errors.New("dicom: no suitable presentation context")
	ErrInvalidMessage      = errors.New("dicom: invalid DIMSE message")
	ErrOperationCanceled   = errors.New("dicom: operation canceled")
)

// AssociationRejectResult is the permanence of an A-ASSOCIATE-RJ.
type AssociationRejectResult byte

const (
	RejectResultPermanent AssociationRejectResult = 0x01
	RejectResultTransient AssociationRejectResult = 0x02
)

func (r AssociationRejectResult) String() string {
	switch r {
	case RejectResultPermanent:
		return "permanent"
	case RejectResultTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// AssociationRejectSource represents who rejected the association
type AssociationRejectSource byte

const (
	RejectSourceUnknown             AssociationRejectSource = 0x00
	RejectSourceServiceUser         AssociationRejectSource = 0x01
	RejectSourceServiceProviderACSE AssociationRejectSource = 0x02
	RejectSourceServiceProviderPres AssociationRejectSource = 0x03
)

func (s AssociationRejectSource) String() string {
	switch s {
	case RejectSourceServiceUser:
		return "service-user"
	case RejectSourceServiceProviderACSE:
		return "service-provider-acse"
	case RejectSourceServiceProviderPres:
		return "service-provider-presentation"
	default:
		return "unknown"
	}
}

// AssociationRejectReason is the reason/diagnostic byte of an A-ASSOCIATE-RJ.
// Its meaning depends on the source; use Describe when the source is known.
type AssociationRejectReason byte

const (
	RejectReasonNoReasonGiven                  AssociationRejectReason = 0x01
	RejectReasonApplicationContextNotSupported AssociationRejectReason = 0x02
	RejectReasonCallingAETitleNotRecognized    AssociationRejectReason = 0x03
	RejectReasonCalledAETitleNotRecognized     AssociationRejectReason = 0x07

	// ACSE provider
	RejectReasonProtocolVersionNotSupported AssociationRejectReason = 0x02

	// presentation provider
	RejectReasonTemporaryCongestion AssociationRejectReason = 0x01
	RejectReasonLocalLimitExceeded  AssociationRejectReason = 0x02
)

func (r AssociationRejectReason) String() string {
	return r.Describe(RejectSourceServiceUser)
}

// Describe names the reason in the context of the rejecting source.
func (r AssociationRejectReason) Describe(source AssociationRejectSource) string {
	switch source {
	case RejectSourceServiceProviderACSE:
		switch r {
		case RejectReasonNoReasonGiven:
			return "no-reason-given"
		case RejectReasonProtocolVersionNotSupported:
			return "protocol-version-not-supported"
		}
	case RejectSourceServiceProviderPres:
		switch r {
		case RejectReasonTemporaryCongestion:
			return "temporary-congestion"
		case RejectReasonLocalLimitExceeded:
			return "local-limit-exceeded"
		}
	default:
		switch r {
		case RejectReasonNoReasonGiven:
			return "no-reason-given"
		case RejectReasonApplicationContextNotSupported:
			return "application-context-not-supported"
		case RejectReasonCallingAETitleNotRecognized:
			return "calling-ae-title-not-recognized"
		case RejectReasonCalledAETitleNotRecognized:
			return "called-ae-title-not-recognized"
		}
	}
	return "unknown"
}

// AssociationError is an A-ASSOCIATE-RJ surfaced to the requestor.
type AssociationError struct {
	Result AssociationRejectResult
	Source AssociationRejectSource
	Reason AssociationRejectReason
	Msg    string
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("association rejected: %s (result: %s, source: %s, reason: %s)",
		e.Msg, e.Result, e.Source, e.Reason.Describe(e.Source))
}

func (e *AssociationError) Is(target error) bool {
	return target == ErrAssociationRejected
}

// NewAssociationError creates a new association error
func NewAssociationError(source AssociationRejectSource, reason AssociationRejectReason, msg string) *AssociationError {
	return &AssociationError{
		Result: RejectResultPermanent,
		Source: source,
		Reason: reason,
		Msg:    msg,
	}
}

// ContextOutcome is the negotiation outcome of one proposed presentation context.
type ContextOutcome struct {
	ID             byte
	AbstractSyntax string
	Result         byte
}

// NegotiationError reports that an association could not be used: either the
// peer sent A-ASSOCIATE-RJ (Reject is set) or it accepted the association but
// none of the proposed presentation contexts.
type NegotiationError struct {
	Reject   *AssociationError
	Contexts []ContextOutcome
}

func (e *NegotiationError) Error() string {
	if e.Reject != nil {
		return "negotiation failed: " + e.Reject.Error()
	}
	return fmt.Sprintf("negotiation failed: none of %d presentation contexts accepted", len(e.Contexts))
}

func (e *NegotiationError) Is(target error) bool {
	return target == ErrAssociationRejected || target == ErrNoPresentationCtx
}

func (e *NegotiationError) Unwrap() error {
	if e.Reject == nil {
		return nil
	}
	return e.Reject
}

// DIMSEError represents a DIMSE operation error with status code
type DIMSEError struct {
	Status    uint16
	Operation string
	Msg       string
}

func (e *DIMSEError) Error() string {
	return fmt.Sprintf("DIMSE %s failed: %s (status: 0x%04X)", e.Operation, e.Msg, e.Status)
}

// NewDIMSEError creates a new DIMSE error
func NewDIMSEError(operation string, status uint16, msg string) *DIMSEError {
	return &DIMSEError{
		Operation: operation,
		Status:    status,
		Msg:       msg,
	}
}

func (e *DIMSEError) IsSuccess() bool {
	return e.Status == 0x0000
}

func (e *DIMSEError) IsPending() bool {
	return e.Status == 0xFF00 || e.Status == 0xFF01
}

func (e *DIMSEError) IsWarning() bool {
	return (e.Status&0xFF00) == 0x0100 || (e.Status&0xF000) == 0xB000
}

func (e *DIMSEError) IsFailure() bool {
	return (e.Status&0xF000) == 0xC000 || (e.Status&0xF000) == 0xA000
}

// TimeoutError is returned when a timer guarding a protocol exchange fires.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded %s", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation string, d time.Duration) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Duration:  d,
	}
}

// NetworkError wraps a transport read or write failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrConnectionClosed
}

// NewNetworkError creates a new network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{
		Op:  op,
		Err: err,
	}
}

// PDUError reports bytes that could not be decoded as a PDU.
type PDUError struct {
	PDUType byte
	Msg     string
	// Unrecognized is set when the header carries a PDU type outside 0x01-0x07.
	Unrecognized bool
}

func (e *PDUError) Error() string {
	return fmt.Sprintf("PDU error (type: 0x%02X): %s", e.PDUType, e.Msg)
}

func (e *PDUError) Is(target error) bool {
	return target == ErrMalformedPDU || (e.Unrecognized && target == ErrUnrecognizedPDU)
}

// NewPDUError creates a new PDU error
func NewPDUError(pduType byte, format string, args ...any) *PDUError {
	return &PDUError{
		PDUType: pduType,
		Msg:     fmt.Sprintf(format, args...),
	}
}

// NewUnrecognizedPDUError reports a header whose PDU type is not defined.
func NewUnrecognizedPDUError(pduType byte) *PDUError {
	return &PDUError{
		PDUType:      pduType,
		Msg:          "unknown PDU type",
		Unrecognized: true,
	}
}

// ProtocolError is a PDU or message that arrived in a state that does not allow it.
type ProtocolError struct {
	State   string
	PDUType byte
	Msg     string
}

func (e *ProtocolError) Error() string {
	if e.PDUType == 0 {
		return fmt.Sprintf("protocol violation in state %s: %s", e.State, e.Msg)
	}
	return fmt.Sprintf("protocol violation in state %s (PDU 0x%02X): %s", e.State, e.PDUType, e.Msg)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// NewProtocolError creates a new protocol error
func NewProtocolError(state string, pduType byte, msg string) *ProtocolError {
	return &ProtocolError{State: state, PDUType: pduType, Msg: msg}
}

// AbortError represents an A-ABORT, sent or received.
type AbortError struct {
	Source byte
	Reason byte
	Local  bool
}

func (e *AbortError) Error() string {
	sourceStr := "unknown"
	switch e.Source {
	case 0x00:
		sourceStr = "service-user"
	case 0x02:
		sourceStr = "service-provider"
	}
	if e.Local {
		return fmt.Sprintf("association aborted locally as %s (reason: 0x%02X)", sourceStr, e.Reason)
	}
	return fmt.Sprintf("connection aborted by %s (reason: 0x%02X)", sourceStr, e.Reason)
}

// NewAbortError creates a new abort error
func NewAbortError(source, reason byte) *AbortError {
	return &AbortError{
		Source: source,
		Reason: reason,
	}
}

// ClosedError is the terminal failure handed to operations that were still
// unresolved when their association ended. Cause says why it ended.
type ClosedError struct {
	Cause error
}

func (e *ClosedError) Error() string {
	if e.Cause == nil {
		return ErrAssociationClosed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrAssociationClosed, e.Cause)
}

func (e *ClosedError) Is(target error) bool {
	return target == ErrAssociationClosed
}

func (e *ClosedError) Unwrap() error {
	return e.Cause
}
