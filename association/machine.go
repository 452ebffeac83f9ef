package association

import (
	"fmt"
	"sync"
	"time"

	"github.com/hsdfat/go-zlog/logger"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/pdu"
)

// State is an upper layer association state.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateAwaitingLocalResponse
	StateEstablished
	StateReleasing
	StateClosed
)

var stateNames = [...]string{"Idle", "Requesting", "AwaitingLocalResponse", "Established", "Releasing", "Closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event is what an incoming PDU meant to the machine.
type Event int

const (
	EventNone Event = iota
	EventAssociateRequest
	EventAccept
	EventReject
	EventData
	EventReleaseRequest
	EventReleaseResponse
	// EventReleaseCollision is a release request that crossed ours. The
	// machine has already answered it.
	EventReleaseCollision
	EventAbort
)

var eventNames = [...]string{"None", "AssociateRequest", "Accept", "Reject", "Data", "ReleaseRequest", "ReleaseResponse", "ReleaseCollision", "Abort"}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Writer sends one PDU to the peer.
type Writer interface {
	WritePDU(p pdu.PDU) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(p pdu.PDU) error

func (f WriterFunc) WritePDU(p pdu.PDU) error { return f(p) }

// Config tunes a Machine.
type Config struct {
	// ARTIMTimeout bounds Requesting, AwaitingLocalResponse, Releasing and
	// the wait for an A-ASSOCIATE-RQ. Zero disables the timer.
	ARTIMTimeout time.Duration
	// OnExpire is called after the timer aborted the association.
	OnExpire func(err error)
	Logger   logger.LoggerI
}

// Machine serializes the lifecycle of one association. PDUs are written
// after the state lock is released so a blocked transport never stalls
// Receive.
type Machine struct {
	mu           sync.Mutex
	state        State
	localRelease bool
	history      []State

	w   Writer
	cfg Config
	log logger.LoggerI

	timer    *time.Timer
	timerGen uint64
}

func NewMachine(w Writer, cfg Config) *Machine {
	log := cfg.Logger
	if log == nil {
		log = dlog.Log
	}
	return &Machine{
		state:   StateIdle,
		history: []State{StateIdle},
		w:       w,
		cfg:     cfg,
		log:     log,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every state entered, in order, starting with Idle.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}

// transition must be called with mu held.
func (m *Machine) transition(to State) {
	if m.state == to {
		return
	}
	m.log.Debugw("Association state change", "from", m.state.String(), "to", to.String())
	m.state = to
	m.history = append(m.history, to)
	if to == StateClosed {
		m.stopTimerLocked()
	}
}

func (m *Machine) startTimerLocked() {
	m.stopTimerLocked()
	if m.cfg.ARTIMTimeout <= 0 {
		return
	}
	m.timerGen++
	gen := m.timerGen
	m.timer = time.AfterFunc(m.cfg.ARTIMTimeout, func() { m.expire(gen) })
}

func (m *Machine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

func (m *Machine) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.timerGen || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	from := m.state
	m.transition(StateClosed)
	m.mu.Unlock()

	m.log.Warnw("ARTIM timer expired", "state", from.String(), "timeout", m.cfg.ARTIMTimeout)
	if from != StateIdle {
		_ = m.w.WritePDU(&pdu.Abort{Source: pdu.AbortSourceServiceProvider, Reason: pdu.AbortReasonNotSpecified})
	}
	if m.cfg.OnExpire != nil {
		m.cfg.OnExpire(dicomerrors.NewTimeoutError("ARTIM in "+from.String(), m.cfg.ARTIMTimeout))
	}
}

// misuse reports a local call that the current state does not allow.
func misuse(state State, op string) error {
	return dicomerrors.NewProtocolError(state.String(), 0, op+" not allowed")
}

// RequestAssociation sends rq and waits for the answer in Requesting.
func (m *Machine) RequestAssociation(rq *pdu.AssociateRQ) error {
	m.mu.Lock()
	if m.state != StateIdle {
		defer m.mu.Unlock()
		return misuse(m.state, "A-ASSOCIATE request")
	}
	m.transition(StateRequesting)
	m.startTimerLocked()
	m.mu.Unlock()

	return m.w.WritePDU(rq)
}

// AwaitRequest arms the timer for an incoming A-ASSOCIATE-RQ.
func (m *Machine) AwaitRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		m.startTimerLocked()
	}
}

// AcceptAssociation answers a received request with ac.
func (m *Machine) AcceptAssociation(ac *pdu.AssociateAC) error {
	m.mu.Lock()
	if m.state != StateAwaitingLocalResponse {
		defer m.mu.Unlock()
		return misuse(m.state, "A-ASSOCIATE accept")
	}
	m.transition(StateEstablished)
	m.stopTimerLocked()
	m.mu.Unlock()

	return m.w.WritePDU(ac)
}

// RejectAssociation answers a received request with rj and closes.
func (m *Machine) RejectAssociation(rj *pdu.AssociateRJ) error {
	m.mu.Lock()
	if m.state != StateAwaitingLocalResponse {
		defer m.mu.Unlock()
		return misuse(m.state, "A-ASSOCIATE reject")
	}
	m.transition(StateClosed)
	m.mu.Unlock()

	return m.w.WritePDU(rj)
}

// SendData writes a P-DATA-TF. It is allowed while Established and, after
// the peer asked to release, until this side responds.
func (m *Machine) SendData(p *pdu.PDataTF) error {
	m.mu.Lock()
	ok := m.state == StateEstablished || (m.state == StateReleasing && !m.localRelease)
	state := m.state
	m.mu.Unlock()
	if !ok {
		if state == StateClosed {
			return &dicomerrors.ClosedError{}
		}
		return misuse(state, "P-DATA")
	}
	return m.w.WritePDU(p)
}

// RequestRelease sends A-RELEASE-RQ. Incoming P-DATA is still accepted
// until the response arrives.
func (m *Machine) RequestRelease() error {
	m.mu.Lock()
	if m.state != StateEstablished {
		defer m.mu.Unlock()
		return misuse(m.state, "A-RELEASE request")
	}
	m.transition(StateReleasing)
	m.localRelease = true
	m.startTimerLocked()
	m.mu.Unlock()

	return m.w.WritePDU(&pdu.ReleaseRQ{})
}

// RespondRelease answers the peer's release request and closes.
func (m *Machine) RespondRelease() error {
	m.mu.Lock()
	if m.state != StateReleasing || m.localRelease {
		defer m.mu.Unlock()
		return misuse(m.state, "A-RELEASE response")
	}
	m.transition(StateClosed)
	m.mu.Unlock()

	return m.w.WritePDU(&pdu.ReleaseRP{})
}

// Abort sends A-ABORT unless already closed. It reports whether an abort
// was sent.
func (m *Machine) Abort(source pdu.AbortSource, reason pdu.AbortReason) (bool, error) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return false, nil
	}
	m.transition(StateClosed)
	m.mu.Unlock()

	return true, m.w.WritePDU(&pdu.Abort{Source: source, Reason: reason})
}

// TransportClosed records that the connection is gone and returns the state
// the machine was in.
func (m *Machine) TransportClosed() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.state
	m.transition(StateClosed)
	return from
}

// Receive applies an incoming PDU. A PDU the current state does not allow
// aborts the association and yields a ProtocolError.
func (m *Machine) Receive(p pdu.PDU) (Event, error) {
	m.mu.Lock()
	state := m.state

	if _, ok := p.(*pdu.Abort); ok {
		m.transition(StateClosed)
		m.mu.Unlock()
		if state == StateClosed {
			return EventNone, nil
		}
		return EventAbort, nil
	}

	var event Event
	var reply pdu.PDU
	switch state {
	case StateIdle:
		if _, ok := p.(*pdu.AssociateRQ); ok {
			m.transition(StateAwaitingLocalResponse)
			m.startTimerLocked()
			event = EventAssociateRequest
		}
	case StateRequesting:
		switch p.(type) {
		case *pdu.AssociateAC:
			m.transition(StateEstablished)
			m.stopTimerLocked()
			event = EventAccept
		case *pdu.AssociateRJ:
			m.transition(StateClosed)
			event = EventReject
		}
	case StateEstablished:
		switch p.(type) {
		case *pdu.PDataTF:
			event = EventData
		case *pdu.ReleaseRQ:
			m.transition(StateReleasing)
			m.localRelease = false
			event = EventReleaseRequest
		}
	case StateReleasing:
		if m.localRelease {
			switch p.(type) {
			case *pdu.PDataTF:
				event = EventData
			case *pdu.ReleaseRP:
				m.transition(StateClosed)
				event = EventReleaseResponse
			case *pdu.ReleaseRQ:
				reply = &pdu.ReleaseRP{}
				event = EventReleaseCollision
			}
		}
	case StateClosed:
		m.mu.Unlock()
		return EventNone, dicomerrors.NewProtocolError(state.String(), byte(p.Type()), "PDU after close")
	}

	if event == EventNone {
		m.transition(StateClosed)
		m.mu.Unlock()

		m.log.Warnw("Unexpected PDU, aborting association", "state", state.String(), "pdu", p.Type().String())
		_ = m.w.WritePDU(&pdu.Abort{Source: pdu.AbortSourceServiceProvider, Reason: pdu.AbortReasonUnexpectedPDU})
		return EventNone, dicomerrors.NewProtocolError(state.String(), byte(p.Type()), "unexpected "+p.Type().String())
	}
	m.mu.Unlock()

	if reply != nil {
		if err := m.w.WritePDU(reply); err != nil {
			return event, err
		}
	}
	return event, nil
}
