// Package association holds the negotiated association model and the upper
// layer state machine that drives its lifecycle.
package association

import (
	"github.com/google/uuid"

	"github.com/caio-sobreiro/dicomassoc/negotiation"
	"github.com/caio-sobreiro/dicomassoc/pdu"
)

// Role is the side of the association the local application plays.
type Role string

const (
	RoleRequestor Role = "requestor"
	RoleAcceptor  Role = "acceptor"
)

// Association is the outcome of a successful negotiation. It is built once
// and never mutated afterwards.
type Association struct {
	ID             string
	Role           Role
	CallingAETitle string
	CalledAETitle  string

	// LocalMaxPDULength is what this side announced it can receive;
	// RemoteMaxPDULength bounds what it may send. Zero means unlimited.
	LocalMaxPDULength  uint32
	RemoteMaxPDULength uint32

	Contexts []negotiation.Result

	// InvokeLimit and PerformLimit bound outstanding operations on this
	// side. Zero means unlimited.
	InvokeLimit  int
	PerformLimit int

	RoleSelections       []pdu.RoleSelection
	ExtendedNegotiations []pdu.ExtendedNegotiation

	RemoteImplementationClassUID string
	RemoteImplementationVersion  string
}

// FromRequest builds the requestor's view from its proposal and the answer.
func FromRequest(rq *pdu.AssociateRQ, ac *pdu.AssociateAC) *Association {
	invoked, performed := negotiation.Limits(ac.UserInfo.AsyncOps)
	return &Association{
		ID:                           uuid.NewString(),
		Role:                         RoleRequestor,
		CallingAETitle:               rq.CallingAETitle,
		CalledAETitle:                rq.CalledAETitle,
		LocalMaxPDULength:            rq.UserInfo.MaxPDULength,
		RemoteMaxPDULength:           ac.UserInfo.MaxPDULength,
		Contexts:                     negotiation.Apply(rq.PresentationContexts, ac.PresentationContexts),
		InvokeLimit:                  invoked,
		PerformLimit:                 performed,
		RoleSelections:               ac.UserInfo.RoleSelections,
		ExtendedNegotiations:         ac.UserInfo.ExtendedNegotiations,
		RemoteImplementationClassUID: ac.UserInfo.ImplementationClassUID,
		RemoteImplementationVersion:  ac.UserInfo.ImplementationVersionName,
	}
}

// FromAccept builds the acceptor's view. The window limits are mirrored: the
// requestor's invoked operations are the ones performed here.
func FromAccept(rq *pdu.AssociateRQ, ac *pdu.AssociateAC, results []negotiation.Result) *Association {
	invoked, performed := negotiation.Limits(ac.UserInfo.AsyncOps)
	return &Association{
		ID:                           uuid.NewString(),
		Role:                         RoleAcceptor,
		CallingAETitle:               rq.CallingAETitle,
		CalledAETitle:                rq.CalledAETitle,
		LocalMaxPDULength:            ac.UserInfo.MaxPDULength,
		RemoteMaxPDULength:           rq.UserInfo.MaxPDULength,
		Contexts:                     results,
		InvokeLimit:                  performed,
		PerformLimit:                 invoked,
		RoleSelections:               ac.UserInfo.RoleSelections,
		ExtendedNegotiations:         rq.UserInfo.ExtendedNegotiations,
		RemoteImplementationClassUID: rq.UserInfo.ImplementationClassUID,
		RemoteImplementationVersion:  rq.UserInfo.ImplementationVersionName,
	}
}

// RemoteAETitle is the peer's AE title.
func (a *Association) RemoteAETitle() string {
	if a.Role == RoleRequestor {
		return a.CalledAETitle
	}
	return a.CallingAETitle
}

// LocalAETitle is this application's AE title.
func (a *Association) LocalAETitle() string {
	if a.Role == RoleRequestor {
		return a.CallingAETitle
	}
	return a.CalledAETitle
}

// Context returns the negotiated context with the given ID.
func (a *Association) Context(id byte) (negotiation.Result, bool) {
	for _, c := range a.Contexts {
		if c.ID == id {
			return c, true
		}
	}
	return negotiation.Result{}, false
}

// FindContext returns the first accepted context for abstractSyntax. When
// transferSyntaxes are given the context must use one of them.
func (a *Association) FindContext(abstractSyntax string, transferSyntaxes ...string) (negotiation.Result, bool) {
	for _, c := range a.Contexts {
		if !c.Accepted() || c.AbstractSyntax != abstractSyntax {
			continue
		}
		if len(transferSyntaxes) == 0 {
			return c, true
		}
		for _, ts := range transferSyntaxes {
			if c.TransferSyntax == ts {
				return c, true
			}
		}
	}
	return negotiation.Result{}, false
}

// AcceptedContexts returns the accepted contexts in negotiation order.
func (a *Association) AcceptedContexts() []negotiation.Result {
	var out []negotiation.Result
	for _, c := range a.Contexts {
		if c.Accepted() {
			out = append(out, c)
		}
	}
	return out
}
