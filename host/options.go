package host

import (
	"time"

	"github.com/hsdfat/go-zlog/logger"

	"github.com/caio-sobreiro/dicomassoc/association"
	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/interfaces"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/negotiation"
	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/types"
)

const (
	DefaultARTIMTimeout   = 30 * time.Second
	DefaultReleaseGrace   = 10 * time.Second
	DefaultMaxPDULength   = 16384
	DefaultWorkerPoolSize = 16

	ImplementationClassUID    = "2.25.171933432163871286133545356155412359722"
	ImplementationVersionName = "DICOMASSOC_1"
)

// EventSink receives association lifecycle notifications. Every association
// ends with exactly one of OnAssociationRejected, OnAbort or
// OnConnectionClosed. Callbacks run on the receive goroutine and must not
// block.
type EventSink interface {
	OnAssociationAccepted(a *association.Association)
	OnAssociationRejected(err *dicomerrors.NegotiationError)
	OnResponseReceived(a *association.Association, msg *types.Message)
	OnReleaseRequested(a *association.Association)
	OnAbort(a *association.Association, err *dicomerrors.AbortError)
	// OnConnectionClosed reports the end of an association that was neither
	// rejected nor aborted. err is nil after an orderly release.
	OnConnectionClosed(a *association.Association, err error)
}

// NopEventSink ignores every notification. Embed it to implement only the
// callbacks you need.
type NopEventSink struct{}

func (NopEventSink) OnAssociationAccepted(*association.Association) {}
func (NopEventSink) OnAssociationRejected(*dicomerrors.NegotiationError) {}
func (NopEventSink) OnResponseReceived(*association.Association, *types.Message) {}
func (NopEventSink) OnReleaseRequested(*association.Association) {}
func (NopEventSink) OnAbort(*association.Association, *dicomerrors.AbortError) {}
func (NopEventSink) OnConnectionClosed(*association.Association, error) {}

// Tap observes every encoded PDU crossing the transport.
type Tap interface {
	Record(outbound bool, raw []byte)
}

// Proposal is what a requestor asks for.
type Proposal struct {
	CallingAETitle       string
	CalledAETitle        string
	Contexts             []pdu.PresentationContextRQ
	RoleSelections       []pdu.RoleSelection
	ExtendedNegotiations []pdu.ExtendedNegotiation
}

// Decision is an acceptor's answer to an A-ASSOCIATE-RQ.
type Decision struct {
	// Reject, when set, is sent instead of an accept.
	Reject *pdu.AssociateRJ
	// Policy decides each presentation context. Nil means
	// negotiation.DefaultPolicy.
	Policy negotiation.Policy
	// RejectWhenNoContexts turns an accept without any accepted context
	// into a permanent rejection.
	RejectWhenNoContexts bool
	// AsyncOps overrides the host's window for this association.
	AsyncOps *pdu.AsyncOperationsWindow
}

// Acceptor decides incoming associations.
type Acceptor interface {
	OnIncomingAssociation(rq *pdu.AssociateRQ) Decision
}

// AcceptorFunc adapts a function to Acceptor.
type AcceptorFunc func(rq *pdu.AssociateRQ) Decision

func (f AcceptorFunc) OnIncomingAssociation(rq *pdu.AssociateRQ) Decision { return f(rq) }

// Option configures a Host.
type Option func(*options)

type options struct {
	artimTimeout   time.Duration
	releaseGrace   time.Duration
	messageTimeout time.Duration
	maxPDULength   uint32
	maxMessageLen  int
	asyncOps       *pdu.AsyncOperationsWindow
	workerPoolSize int
	implClassUID   string
	implVersion    string
	logger         logger.LoggerI
	sink           EventSink
	handler        interfaces.ServiceHandler
	tap            Tap
}

func defaultOptions() options {
	return options{
		artimTimeout:   DefaultARTIMTimeout,
		releaseGrace:   DefaultReleaseGrace,
		maxPDULength:   DefaultMaxPDULength,
		workerPoolSize: DefaultWorkerPoolSize,
		implClassUID:   ImplementationClassUID,
		implVersion:    ImplementationVersionName,
		logger:         dlog.Log,
		sink:           NopEventSink{},
	}
}

// WithARTIMTimeout bounds association setup and release. Zero disables it.
func WithARTIMTimeout(d time.Duration) Option {
	return func(o *options) { o.artimTimeout = d }
}

// WithReleaseGrace sets how long Release waits for outstanding operations
// before it aborts instead.
func WithReleaseGrace(d time.Duration) Option {
	return func(o *options) { o.releaseGrace = d }
}

// WithMessageTimeout fails an operation that receives no response for d.
// The association stays up. Zero waits forever.
func WithMessageTimeout(d time.Duration) Option {
	return func(o *options) { o.messageTimeout = d }
}

// WithMaxPDULength sets the largest P-DATA-TF this side accepts. Zero
// announces no limit.
func WithMaxPDULength(n uint32) Option {
	return func(o *options) { o.maxPDULength = n }
}

// WithMaxMessageLength aborts the association when the command and data set
// of one incoming message grow past n bytes. Zero means unlimited.
func WithMaxMessageLength(n int) Option {
	return func(o *options) { o.maxMessageLen = n }
}

// WithAsyncOps proposes (or, as acceptor, allows) more than one outstanding
// operation per direction. Zero fields mean unlimited.
func WithAsyncOps(invoked, performed uint16) Option {
	return func(o *options) {
		o.asyncOps = &pdu.AsyncOperationsWindow{MaxOpsInvoked: invoked, MaxOpsPerformed: performed}
	}
}

// WithWorkerPoolSize bounds the goroutines performing incoming requests.
func WithWorkerPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workerPoolSize = n
		}
	}
}

// WithImplementation overrides the announced implementation class UID and
// version name.
func WithImplementation(classUID, version string) Option {
	return func(o *options) {
		o.implClassUID = classUID
		o.implVersion = version
	}
}

func WithLogger(l logger.LoggerI) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithEventSink(s EventSink) Option {
	return func(o *options) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithHandler sets the handler performing incoming requests. Without one
// every request is answered with StatusUnrecognizedOperation.
func WithHandler(h interfaces.ServiceHandler) Option {
	return func(o *options) { o.handler = h }
}

func WithTap(t Tap) Option {
	return func(o *options) { o.tap = t }
}
