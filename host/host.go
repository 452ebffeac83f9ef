// Package host runs DIMSE exchanges over one association: it drives the
// association state machine from a receive goroutine, correlates responses
// with the operations this side invoked, and performs incoming requests on a
// worker pool.
package host

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hsdfat/go-zlog/logger"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/association"
	"github.com/caio-sobreiro/dicomassoc/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/interfaces"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/negotiation"
	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Host owns one association and its transport.
type Host struct {
	conn     io.ReadWriteCloser
	opts     options
	role     association.Role
	machine  *association.Machine
	acceptor Acceptor
	rq       *pdu.AssociateRQ

	mu        sync.Mutex
	assoc     *association.Association
	log       logger.LoggerI
	nextID    uint16
	invoked   map[uint16]*Operation
	performed map[uint16]*performing
	closing   bool

	// writeMu keeps PDUs whole on the wire; sendMu keeps the PDUs of one
	// message contiguous.
	writeMu sync.Mutex
	sendMu  sync.Mutex

	reassembler *dimse.Reassembler
	pool        *ants.PoolWithFunc
	workers     sync.WaitGroup

	ctx  context.Context
	stop context.CancelFunc

	handshake chan error
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
	runDone   chan struct{}
}

func newHost(conn io.ReadWriteCloser, role association.Role, opts []Option) (*Host, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if nc, ok := conn.(net.Conn); ok && nc.RemoteAddr() != nil {
		log = log.With("remote_addr", nc.RemoteAddr().String()).(logger.LoggerI)
	}

	h := &Host{
		conn:        conn,
		opts:        o,
		role:        role,
		log:         log,
		invoked:     make(map[uint16]*Operation),
		performed:   make(map[uint16]*performing),
		reassembler: dimse.NewReassembler(dimse.WithMaxMessageLength(o.maxMessageLen)),
		handshake:   make(chan error, 1),
		closed:      make(chan struct{}),
		runDone:     make(chan struct{}),
	}
	h.ctx, h.stop = context.WithCancel(context.Background())

	pool, err := ants.NewPoolWithFunc(o.workerPoolSize, h.work,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			h.logger().Errorw("Worker panic", "panic", p)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create worker pool")
	}
	h.pool = pool

	h.machine = association.NewMachine(association.WriterFunc(h.writePDU), association.Config{
		ARTIMTimeout: o.artimTimeout,
		OnExpire:     h.onExpire,
		Logger:       log,
	})
	return h, nil
}

// Open requests an association over conn and blocks until it is
// established. A rejection, or an accept without any usable presentation
// context, yields *errors.NegotiationError; an expired ARTIM timer yields
// *errors.TimeoutError. conn is closed on failure.
func Open(ctx context.Context, conn io.ReadWriteCloser, p Proposal, opts ...Option) (*Host, error) {
	if len(p.Contexts) == 0 {
		_ = conn.Close()
		return nil, errors.Wrap(dicomerrors.ErrNoPresentationCtx, "nothing proposed")
	}
	h, err := newHost(conn, association.RoleRequestor, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	h.rq = &pdu.AssociateRQ{
		ProtocolVersion:      pdu.ProtocolVersion,
		CalledAETitle:        p.CalledAETitle,
		CallingAETitle:       p.CallingAETitle,
		ApplicationContext:   types.ApplicationContextUID,
		PresentationContexts: p.Contexts,
		UserInfo: pdu.UserInformation{
			MaxPDULength:              h.opts.maxPDULength,
			ImplementationClassUID:    h.opts.implClassUID,
			ImplementationVersionName: h.opts.implVersion,
			AsyncOps:                  h.opts.asyncOps,
			RoleSelections:            p.RoleSelections,
			ExtendedNegotiations:      p.ExtendedNegotiations,
		},
	}

	go h.run()
	if err := h.machine.RequestAssociation(h.rq); err != nil {
		h.terminate(err, closedNotice(err))
		return nil, err
	}
	if err := h.awaitHandshake(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Accept waits for an A-ASSOCIATE-RQ on conn and answers it as acceptor
// decides. Incoming requests are performed by handler.
func Accept(ctx context.Context, conn io.ReadWriteCloser, acceptor Acceptor, handler interfaces.ServiceHandler, opts ...Option) (*Host, error) {
	h, err := newHost(conn, association.RoleAcceptor, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if handler != nil {
		h.opts.handler = handler
	}
	h.acceptor = acceptor
	if h.acceptor == nil {
		h.acceptor = AcceptorFunc(func(*pdu.AssociateRQ) Decision { return Decision{} })
	}

	h.machine.AwaitRequest()
	go h.run()
	if err := h.awaitHandshake(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Host) awaitHandshake(ctx context.Context) error {
	select {
	case err := <-h.handshake:
		return err
	case <-ctx.Done():
		_ = h.Abort()
		return errors.Wrap(ctx.Err(), "association setup")
	}
}

// Association returns the negotiated association, or nil before it is
// established.
func (h *Host) Association() *association.Association {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.assoc
}

// State is the current state of the association state machine.
func (h *Host) State() association.State {
	return h.machine.State()
}

// Done is closed once the association has ended and the transport is closed.
func (h *Host) Done() <-chan struct{} {
	return h.closed
}

// Err says why the association ended. It is nil while the association is
// up and after an orderly release.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeErr
}

// Outstanding is the number of invoked operations awaiting their final
// response.
func (h *Host) Outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.invoked)
}

func (h *Host) logger() logger.LoggerI {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log
}

func (h *Host) establish(a *association.Association) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.assoc = a
	h.log = dlog.ForAssociation(h.log, a.ID, string(a.Role)).With(
		"calling_ae", a.CallingAETitle,
		"called_ae", a.CalledAETitle).(logger.LoggerI)
}

func (h *Host) signalHandshake(err error) {
	select {
	case h.handshake <- err:
	default:
	}
}

func (h *Host) writePDU(p pdu.PDU) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.opts.tap == nil {
		return pdu.Write(h.conn, p)
	}
	raw, err := pdu.Encode(p)
	if err != nil {
		return err
	}
	if _, err := h.conn.Write(raw); err != nil {
		return dicomerrors.NewNetworkError("write", err)
	}
	h.opts.tap.Record(true, raw)
	return nil
}

func (h *Host) record(p pdu.PDU) {
	if h.opts.tap == nil {
		return
	}
	if raw, err := pdu.Encode(p); err == nil {
		h.opts.tap.Record(false, raw)
	}
}

// run is the receive goroutine. It is the only reader of the transport and
// the only user of the reassembler.
func (h *Host) run() {
	defer close(h.runDone)
	defer func() {
		if err := h.reassembler.Discard(); err != nil {
			h.logger().Debugw("Dropped partial messages", "error", err)
		}
	}()

	for {
		p, err := pdu.Read(h.conn, h.opts.maxPDULength)
		if err != nil {
			h.readFailed(err)
			return
		}
		h.record(p)

		ev, err := h.machine.Receive(p)
		if err != nil {
			var protoErr *dicomerrors.ProtocolError
			if errors.As(err, &protoErr) && protoErr.State == association.StateClosed.String() {
				return
			}
			abortErr := &dicomerrors.AbortError{
				Source: byte(pdu.AbortSourceServiceProvider),
				Reason: byte(pdu.AbortReasonUnexpectedPDU),
				Local:  true,
			}
			h.terminate(err, abortNotice(abortErr))
			return
		}
		if !h.handle(ev, p) {
			return
		}
	}
}

func (h *Host) readFailed(err error) {
	select {
	case <-h.closed:
		return
	default:
	}

	var pduErr *dicomerrors.PDUError
	if errors.As(err, &pduErr) {
		reason := pdu.AbortReasonInvalidPDUParameterValue
		if pduErr.Unrecognized {
			reason = pdu.AbortReasonUnrecognizedPDU
		}
		h.logger().Warnw("Malformed PDU, aborting association", "error", err, "reason", reason)
		h.abort(pdu.AbortSourceServiceProvider, reason, err)
		return
	}

	from := h.machine.TransportClosed()
	if from == association.StateClosed {
		h.terminate(nil, closedNotice(nil))
		return
	}
	cause := err
	if errors.Is(err, io.EOF) {
		cause = dicomerrors.NewNetworkError("read", io.ErrUnexpectedEOF)
	}
	h.logger().Warnw("Transport closed", "state", from.String(), "error", err)
	h.terminate(cause, closedNotice(cause))
}

// handle reacts to a PDU the machine accepted. It reports whether the
// receive loop should continue.
func (h *Host) handle(ev association.Event, p pdu.PDU) bool {
	switch ev {
	case association.EventAssociateRequest:
		return h.onAssociateRequest(p.(*pdu.AssociateRQ))
	case association.EventAccept:
		return h.onAccept(p.(*pdu.AssociateAC))
	case association.EventReject:
		h.onReject(p.(*pdu.AssociateRJ))
		return false
	case association.EventData:
		if err := h.onData(p.(*pdu.PDataTF)); err != nil {
			reason := pdu.AbortReasonInvalidPDUParameterValue
			if errors.Is(err, dicomerrors.ErrProtocolViolation) {
				reason = pdu.AbortReasonUnexpectedPDUParameter
			}
			h.logger().Warnw("Aborting association on bad P-DATA", "error", err)
			h.abort(pdu.AbortSourceServiceProvider, reason, err)
			return false
		}
		return true
	case association.EventReleaseRequest:
		h.onReleaseRequest()
		return true
	case association.EventReleaseCollision:
		h.logger().Debugw("Release collision answered")
		return true
	case association.EventReleaseResponse:
		h.terminate(nil, closedNotice(nil))
		return false
	case association.EventAbort:
		a := p.(*pdu.Abort)
		abortErr := &dicomerrors.AbortError{Source: byte(a.Source), Reason: byte(a.Reason)}
		h.logger().Warnw("Association aborted by peer", "source", a.Source.String(), "reason", a.Reason.String())
		h.terminate(abortErr, abortNotice(abortErr))
		return false
	}
	return true
}

func outcomes(results []negotiation.Result) []dicomerrors.ContextOutcome {
	out := make([]dicomerrors.ContextOutcome, 0, len(results))
	for _, r := range results {
		out = append(out, dicomerrors.ContextOutcome{ID: r.ID, AbstractSyntax: r.AbstractSyntax, Result: byte(r.Result)})
	}
	return out
}

func (h *Host) onAssociateRequest(rq *pdu.AssociateRQ) bool {
	h.rq = rq
	decision := h.acceptor.OnIncomingAssociation(rq)

	if decision.Reject == nil && rq.ProtocolVersion&pdu.ProtocolVersion == 0 {
		decision.Reject = &pdu.AssociateRJ{
			Result: byte(dicomerrors.RejectResultPermanent),
			Source: byte(dicomerrors.RejectSourceServiceProviderACSE),
			Reason: byte(dicomerrors.RejectReasonProtocolVersionNotSupported),
		}
	}
	if decision.Reject == nil && rq.ApplicationContext != types.ApplicationContextUID {
		decision.Reject = &pdu.AssociateRJ{
			Result: byte(dicomerrors.RejectResultPermanent),
			Source: byte(dicomerrors.RejectSourceServiceUser),
			Reason: byte(dicomerrors.RejectReasonApplicationContextNotSupported),
		}
	}

	var results []negotiation.Result
	if decision.Reject == nil {
		policy := decision.Policy
		if policy == nil {
			policy = negotiation.DefaultPolicy()
		}
		results = negotiation.Negotiate(rq.PresentationContexts, policy)
		if decision.RejectWhenNoContexts && negotiation.CountAccepted(results) == 0 {
			decision.Reject = &pdu.AssociateRJ{
				Result: byte(dicomerrors.RejectResultPermanent),
				Source: byte(dicomerrors.RejectSourceServiceUser),
				Reason: byte(dicomerrors.RejectReasonNoReasonGiven),
			}
		}
	}

	if decision.Reject != nil {
		rj := decision.Reject
		err := &dicomerrors.NegotiationError{
			Reject: &dicomerrors.AssociationError{
				Result: dicomerrors.AssociationRejectResult(rj.Result),
				Source: dicomerrors.AssociationRejectSource(rj.Source),
				Reason: dicomerrors.AssociationRejectReason(rj.Reason),
				Msg:    fmt.Sprintf("%s rejected by %s", rq.CallingAETitle, rq.CalledAETitle),
			},
			Contexts: outcomes(results),
		}
		h.logger().Infow("Rejecting association",
			"calling_ae", rq.CallingAETitle,
			"called_ae", rq.CalledAETitle,
			"reason", err.Reject.Reason.Describe(err.Reject.Source))
		if werr := h.machine.RejectAssociation(rj); werr != nil {
			h.logger().Warnw("Failed to send A-ASSOCIATE-RJ", "error", werr)
		}
		h.terminate(err, rejectNotice(err))
		return false
	}

	local := decision.AsyncOps
	if local == nil {
		local = h.opts.asyncOps
	}
	ac := &pdu.AssociateAC{
		ProtocolVersion:      pdu.ProtocolVersion,
		CalledAETitle:        rq.CalledAETitle,
		CallingAETitle:       rq.CallingAETitle,
		ApplicationContext:   types.ApplicationContextUID,
		PresentationContexts: negotiation.ToAC(results),
		UserInfo: pdu.UserInformation{
			MaxPDULength:              h.opts.maxPDULength,
			ImplementationClassUID:    h.opts.implClassUID,
			ImplementationVersionName: h.opts.implVersion,
			AsyncOps:                  negotiation.NegotiateAsyncOps(rq.UserInfo.AsyncOps, local),
			RoleSelections:            negotiation.NegotiateRoles(rq.UserInfo.RoleSelections, results),
		},
	}

	a := association.FromAccept(rq, ac, results)
	h.establish(a)
	if err := h.machine.AcceptAssociation(ac); err != nil {
		h.terminate(err, closedNotice(err))
		return false
	}

	h.logger().Infow("Association accepted",
		"contexts_accepted", negotiation.CountAccepted(results),
		"contexts_proposed", len(results),
		"remote_max_pdu", a.RemoteMaxPDULength,
		"invoke_limit", a.InvokeLimit,
		"perform_limit", a.PerformLimit)
	h.opts.sink.OnAssociationAccepted(a)
	h.signalHandshake(nil)
	return true
}

func (h *Host) onAccept(ac *pdu.AssociateAC) bool {
	a := association.FromRequest(h.rq, ac)
	if negotiation.CountAccepted(a.Contexts) == 0 {
		err := &dicomerrors.NegotiationError{Contexts: outcomes(a.Contexts)}
		h.logger().Warnw("No presentation context accepted, aborting association",
			"called_ae", h.rq.CalledAETitle,
			"contexts_proposed", len(a.Contexts))
		if _, werr := h.machine.Abort(pdu.AbortSourceServiceUser, pdu.AbortReasonNotSpecified); werr != nil {
			h.logger().Warnw("Failed to send A-ABORT", "error", werr)
		}
		h.terminate(err, rejectNotice(err))
		return false
	}

	h.establish(a)
	h.logger().Infow("Association established",
		"contexts_accepted", len(a.AcceptedContexts()),
		"remote_max_pdu", a.RemoteMaxPDULength,
		"invoke_limit", a.InvokeLimit,
		"perform_limit", a.PerformLimit,
		"remote_implementation", a.RemoteImplementationClassUID)
	h.opts.sink.OnAssociationAccepted(a)
	h.signalHandshake(nil)
	return true
}

func (h *Host) onReject(rj *pdu.AssociateRJ) {
	err := &dicomerrors.NegotiationError{
		Reject: &dicomerrors.AssociationError{
			Result: dicomerrors.AssociationRejectResult(rj.Result),
			Source: dicomerrors.AssociationRejectSource(rj.Source),
			Reason: dicomerrors.AssociationRejectReason(rj.Reason),
			Msg:    "rejected by " + h.rq.CalledAETitle,
		},
	}
	h.logger().Warnw("Association rejected", "error", err)
	h.terminate(err, rejectNotice(err))
}

func (h *Host) onData(p *pdu.PDataTF) error {
	a := h.Association()
	for _, v := range p.Items {
		pc, ok := a.Context(v.ContextID)
		if !ok || !pc.Accepted() {
			return dicomerrors.NewProtocolError(association.StateEstablished.String(), byte(pdu.TypePDataTF),
				fmt.Sprintf("P-DATA on presentation context %d which was not accepted", v.ContextID))
		}
		msg, err := h.reassembler.Add(v)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}
		msg.Command.TransferSyntaxUID = pc.TransferSyntax
		h.dispatch(a, msg)
	}
	return nil
}

func (h *Host) dispatch(a *association.Association, msg *dimse.Message) {
	cmd := msg.Command
	switch {
	case cmd.CommandField.IsResponse():
		h.resolve(a, msg)
	case cmd.CommandField == types.CCancelRQ:
		h.cancelPerformed(cmd.MessageIDBeingRespondedTo)
	default:
		h.perform(a, msg)
	}
}

// resolve hands a response to the operation it answers. Responses nobody
// waits for are dropped.
func (h *Host) resolve(a *association.Association, msg *dimse.Message) {
	cmd := msg.Command
	id := cmd.MessageIDBeingRespondedTo

	h.mu.Lock()
	op, ok := h.invoked[id]
	if ok && cmd.CommandField != op.Request.CommandField.Response() {
		ok = false
	}
	if ok && !cmd.IsPending() {
		delete(h.invoked, id)
	}
	log := h.log
	h.mu.Unlock()

	if !ok {
		log.Warnw("Dropping uncorrelated response",
			"message_id_responded_to", id,
			"command_field", cmd.CommandField.String(),
			"status", cmd.Status)
		return
	}

	log.Debugw("DIMSE response received",
		"message_id", id,
		"command_field", cmd.CommandField.String(),
		"status", cmd.Status,
		"context_id", msg.ContextID)
	h.opts.sink.OnResponseReceived(a, cmd)
	op.deliver(&Response{Command: cmd, Data: msg.Data})
}

func (h *Host) onReleaseRequest() {
	a := h.Association()
	h.logger().Infow("Release requested by peer")
	h.opts.sink.OnReleaseRequested(a)

	go func() {
		h.waitPerformed(h.opts.releaseGrace)
		if err := h.machine.RespondRelease(); err != nil {
			h.terminate(err, closedNotice(err))
			return
		}
		h.terminate(nil, closedNotice(nil))
	}()
}

// waitPerformed lets requests being performed finish their responses
// before this side answers a release.
func (h *Host) waitPerformed(limit time.Duration) {
	done := make(chan struct{})
	go func() {
		h.workers.Wait()
		close(done)
	}()
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		h.logger().Warnw("Requests still being performed at release", "grace", limit)
	case <-h.closed:
	}
}

func (h *Host) onExpire(err error) {
	history := h.machine.History()
	from := association.StateIdle
	if len(history) >= 2 {
		from = history[len(history)-2]
	}
	if from == association.StateIdle {
		h.terminate(err, closedNotice(err))
		return
	}
	abortErr := &dicomerrors.AbortError{
		Source: byte(pdu.AbortSourceServiceProvider),
		Reason: byte(pdu.AbortReasonNotSpecified),
		Local:  true,
	}
	h.terminate(err, abortNotice(abortErr))
}

// Release asks the peer to release the association and waits for its
// answer. Outstanding invoked operations get ReleaseGrace to finish; if they
// do not, the association is aborted and the error wraps
// errors.ErrPendingOperations.
func (h *Host) Release(ctx context.Context) error {
	if h.Association() == nil {
		return &dicomerrors.ClosedError{Cause: h.Err()}
	}
	if err := h.drain(ctx); err != nil {
		return err
	}
	h.logger().Infow("Releasing association")
	if err := h.machine.RequestRelease(); err != nil {
		select {
		case <-h.closed:
			return &dicomerrors.ClosedError{Cause: h.Err()}
		default:
			return err
		}
	}

	select {
	case <-h.closed:
		return h.Err()
	case <-ctx.Done():
		_ = h.Abort()
		return errors.Wrap(ctx.Err(), "release")
	}
}

func (h *Host) outstanding() []*Operation {
	h.mu.Lock()
	defer h.mu.Unlock()
	ops := make([]*Operation, 0, len(h.invoked))
	for _, op := range h.invoked {
		ops = append(ops, op)
	}
	return ops
}

func (h *Host) drain(ctx context.Context) error {
	ops := h.outstanding()
	if len(ops) == 0 {
		return nil
	}
	grace := time.NewTimer(h.opts.releaseGrace)
	defer grace.Stop()

	for _, op := range ops {
		select {
		case <-op.Done():
		case <-grace.C:
			n := h.Outstanding()
			h.logger().Warnw("Operations still pending at release, aborting",
				"pending", n,
				"grace", h.opts.releaseGrace)
			_ = h.Abort()
			return errors.Wrapf(dicomerrors.ErrPendingOperations, "%d operation(s) outstanding after %s", n, h.opts.releaseGrace)
		case <-ctx.Done():
			_ = h.Abort()
			return errors.Wrap(ctx.Err(), "release")
		case <-h.closed:
			return &dicomerrors.ClosedError{Cause: h.Err()}
		}
	}
	return nil
}

// Abort sends A-ABORT and closes the association at once. Outstanding
// operations fail with errors.ErrAssociationClosed.
func (h *Host) Abort() error {
	return h.abort(pdu.AbortSourceServiceUser, pdu.AbortReasonNotSpecified, nil)
}

func (h *Host) abort(source pdu.AbortSource, reason pdu.AbortReason, cause error) error {
	sent, err := h.machine.Abort(source, reason)
	if !sent && err == nil {
		// already closed, possibly by a terminate still in flight
		h.terminate(cause, closedNotice(cause))
		return nil
	}
	abortErr := &dicomerrors.AbortError{Source: byte(source), Reason: byte(reason), Local: true}
	if cause == nil {
		cause = abortErr
	}
	h.terminate(cause, abortNotice(abortErr))
	return err
}

type notice func(s EventSink, a *association.Association)

func closedNotice(err error) notice {
	return func(s EventSink, a *association.Association) { s.OnConnectionClosed(a, err) }
}

func abortNotice(err *dicomerrors.AbortError) notice {
	return func(s EventSink, a *association.Association) { s.OnAbort(a, err) }
}

func rejectNotice(err *dicomerrors.NegotiationError) notice {
	return func(s EventSink, _ *association.Association) { s.OnAssociationRejected(err) }
}

// terminate ends the association once: it closes the transport, fails
// every outstanding operation, stops requests being performed and emits
// the single terminal notification. Only the first call has any effect.
func (h *Host) terminate(cause error, notify notice) {
	first := false
	h.closeOnce.Do(func() {
		first = true
		h.mu.Lock()
		h.closing = true
		h.closeErr = cause
		ops := h.invoked
		h.invoked = make(map[uint16]*Operation)
		h.mu.Unlock()

		h.machine.TransportClosed()
		_ = h.conn.Close()
		h.stop()

		closedErr := &dicomerrors.ClosedError{Cause: cause}
		for _, op := range ops {
			op.fail(closedErr)
		}
		if len(ops) > 0 {
			h.logger().Warnw("Outstanding operations failed on close", "count", len(ops), "cause", cause)
		}
		h.pool.Release()
		close(h.closed)
	})
	if !first {
		return
	}

	h.logger().Infow("Association closed", "cause", cause)
	if notify != nil {
		notify(h.opts.sink, h.Association())
	}

	var handshakeErr error = &dicomerrors.ClosedError{Cause: cause}
	var negErr *dicomerrors.NegotiationError
	var timeoutErr *dicomerrors.TimeoutError
	if errors.As(cause, &negErr) || errors.As(cause, &timeoutErr) {
		handshakeErr = cause
	}
	h.signalHandshake(handshakeErr)
}
