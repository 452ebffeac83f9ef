package association

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/pdu"
)

type recorder struct {
	mu   sync.Mutex
	sent []pdu.PDU
}

func (r *recorder) WritePDU(p pdu.PDU) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, p)
	return nil
}

func (r *recorder) last() pdu.PDU {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func establishedRequestor(t *testing.T, cfg Config) (*Machine, *recorder) {
	t.Helper()
	w := &recorder{}
	m := NewMachine(w, cfg)
	require.NoError(t, m.RequestAssociation(&pdu.AssociateRQ{}))
	ev, err := m.Receive(&pdu.AssociateAC{})
	require.NoError(t, err)
	require.Equal(t, EventAccept, ev)
	return m, w
}

func establishedAcceptor(t *testing.T, cfg Config) (*Machine, *recorder) {
	t.Helper()
	w := &recorder{}
	m := NewMachine(w, cfg)
	ev, err := m.Receive(&pdu.AssociateRQ{})
	require.NoError(t, err)
	require.Equal(t, EventAssociateRequest, ev)
	require.NoError(t, m.AcceptAssociation(&pdu.AssociateAC{}))
	return m, w
}

func TestRequestorLifecycle(t *testing.T) {
	m, w := establishedRequestor(t, Config{})
	assert.Equal(t, StateEstablished, m.State())

	require.NoError(t, m.SendData(&pdu.PDataTF{}))
	ev, err := m.Receive(&pdu.PDataTF{})
	require.NoError(t, err)
	assert.Equal(t, EventData, ev)

	require.NoError(t, m.RequestRelease())
	assert.IsType(t, &pdu.ReleaseRQ{}, w.last())

	// the initiator still drains incoming data while releasing
	ev, err = m.Receive(&pdu.PDataTF{})
	require.NoError(t, err)
	assert.Equal(t, EventData, ev)

	ev, err = m.Receive(&pdu.ReleaseRP{})
	require.NoError(t, err)
	assert.Equal(t, EventReleaseResponse, ev)

	assert.Equal(t, []State{StateIdle, StateRequesting, StateEstablished, StateReleasing, StateClosed}, m.History())
}

func TestAcceptorLifecycle(t *testing.T) {
	m, w := establishedAcceptor(t, Config{})
	assert.IsType(t, &pdu.AssociateAC{}, w.last())

	ev, err := m.Receive(&pdu.ReleaseRQ{})
	require.NoError(t, err)
	assert.Equal(t, EventReleaseRequest, ev)

	// the responder may finish sending before it answers
	require.NoError(t, m.SendData(&pdu.PDataTF{}))
	require.NoError(t, m.RespondRelease())
	assert.IsType(t, &pdu.ReleaseRP{}, w.last())
	assert.Equal(t, StateClosed, m.State())
}

func TestRejectAssociation(t *testing.T) {
	w := &recorder{}
	m := NewMachine(w, Config{})
	_, err := m.Receive(&pdu.AssociateRQ{})
	require.NoError(t, err)

	require.NoError(t, m.RejectAssociation(&pdu.AssociateRJ{Result: 1, Source: 1, Reason: 7}))
	assert.IsType(t, &pdu.AssociateRJ{}, w.last())
	assert.Equal(t, StateClosed, m.State())
}

func TestRequestorReceivesReject(t *testing.T) {
	m := NewMachine(&recorder{}, Config{})
	require.NoError(t, m.RequestAssociation(&pdu.AssociateRQ{}))

	ev, err := m.Receive(&pdu.AssociateRJ{})
	require.NoError(t, err)
	assert.Equal(t, EventReject, ev)
	assert.Equal(t, StateClosed, m.State())
}

func TestUnexpectedPDUAborts(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) (*Machine, *recorder)
		pdu   pdu.PDU
	}{
		{"data in Idle", func(t *testing.T) (*Machine, *recorder) {
			w := &recorder{}
			return NewMachine(w, Config{}), w
		}, &pdu.PDataTF{}},
		{"data while Requesting", func(t *testing.T) (*Machine, *recorder) {
			w := &recorder{}
			m := NewMachine(w, Config{})
			require.NoError(t, m.RequestAssociation(&pdu.AssociateRQ{}))
			return m, w
		}, &pdu.PDataTF{}},
		{"second accept", func(t *testing.T) (*Machine, *recorder) {
			return establishedRequestor(t, Config{})
		}, &pdu.AssociateAC{}},
		{"release response without request", func(t *testing.T) (*Machine, *recorder) {
			return establishedRequestor(t, Config{})
		}, &pdu.ReleaseRP{}},
		{"data after peer release request", func(t *testing.T) (*Machine, *recorder) {
			m, w := establishedAcceptor(t, Config{})
			_, err := m.Receive(&pdu.ReleaseRQ{})
			require.NoError(t, err)
			return m, w
		}, &pdu.PDataTF{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, w := tt.setup(t)
			ev, err := m.Receive(tt.pdu)
			assert.Equal(t, EventNone, ev)
			assert.ErrorIs(t, err, dicomerrors.ErrProtocolViolation)
			assert.Equal(t, StateClosed, m.State())

			abort, ok := w.last().(*pdu.Abort)
			require.True(t, ok, "abort sent")
			assert.Equal(t, pdu.AbortSourceServiceProvider, abort.Source)
			assert.Equal(t, pdu.AbortReasonUnexpectedPDU, abort.Reason)
		})
	}
}

func TestAbortFromAnyState(t *testing.T) {
	m, w := establishedRequestor(t, Config{})
	sent := w.count()

	ev, err := m.Receive(&pdu.Abort{})
	require.NoError(t, err)
	assert.Equal(t, EventAbort, ev)
	assert.Equal(t, StateClosed, m.State())
	assert.Equal(t, sent, w.count(), "no reply to an abort")

	ev, err = m.Receive(&pdu.Abort{})
	require.NoError(t, err)
	assert.Equal(t, EventNone, ev)
}

func TestLocalAbort(t *testing.T) {
	m, w := establishedRequestor(t, Config{})

	sent, err := m.Abort(pdu.AbortSourceServiceUser, pdu.AbortReasonNotSpecified)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.IsType(t, &pdu.Abort{}, w.last())

	sent, err = m.Abort(pdu.AbortSourceServiceUser, pdu.AbortReasonNotSpecified)
	require.NoError(t, err)
	assert.False(t, sent)

	assert.ErrorIs(t, m.SendData(&pdu.PDataTF{}), dicomerrors.ErrAssociationClosed)
}

func TestReleaseCollision(t *testing.T) {
	m, w := establishedRequestor(t, Config{})
	require.NoError(t, m.RequestRelease())

	ev, err := m.Receive(&pdu.ReleaseRQ{})
	require.NoError(t, err)
	assert.Equal(t, EventReleaseCollision, ev)
	assert.IsType(t, &pdu.ReleaseRP{}, w.last())
	assert.Equal(t, StateReleasing, m.State())

	ev, err = m.Receive(&pdu.ReleaseRP{})
	require.NoError(t, err)
	assert.Equal(t, EventReleaseResponse, ev)
	assert.Equal(t, StateClosed, m.State())
}

func TestLocalMisuse(t *testing.T) {
	m := NewMachine(&recorder{}, Config{})
	assert.ErrorIs(t, m.SendData(&pdu.PDataTF{}), dicomerrors.ErrProtocolViolation)
	assert.ErrorIs(t, m.RequestRelease(), dicomerrors.ErrProtocolViolation)
	assert.ErrorIs(t, m.AcceptAssociation(&pdu.AssociateAC{}), dicomerrors.ErrProtocolViolation)
	assert.ErrorIs(t, m.RespondRelease(), dicomerrors.ErrProtocolViolation)

	m, _ = establishedRequestor(t, Config{})
	require.NoError(t, m.RequestRelease())
	assert.ErrorIs(t, m.SendData(&pdu.PDataTF{}), dicomerrors.ErrProtocolViolation, "initiator stops sending")
	assert.ErrorIs(t, m.RequestAssociation(&pdu.AssociateRQ{}), dicomerrors.ErrProtocolViolation)
}

func TestTransportClosed(t *testing.T) {
	m, _ := establishedAcceptor(t, Config{})
	assert.Equal(t, StateEstablished, m.TransportClosed())
	assert.Equal(t, StateClosed, m.State())

	_, err := m.Receive(&pdu.PDataTF{})
	assert.ErrorIs(t, err, dicomerrors.ErrProtocolViolation)
}

func TestARTIMExpiry(t *testing.T) {
	expired := make(chan error, 1)
	w := &recorder{}
	m := NewMachine(w, Config{
		ARTIMTimeout: 20 * time.Millisecond,
		OnExpire:     func(err error) { expired <- err },
	})
	require.NoError(t, m.RequestAssociation(&pdu.AssociateRQ{}))

	select {
	case err := <-expired:
		var timeout *dicomerrors.TimeoutError
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, 20*time.Millisecond, timeout.Duration)
	case <-time.After(2 * time.Second):
		t.Fatal("ARTIM did not expire")
	}
	assert.Equal(t, StateClosed, m.State())
	assert.IsType(t, &pdu.Abort{}, w.last())
}

func TestARTIMStoppedOnAccept(t *testing.T) {
	expired := make(chan error, 1)
	m, _ := establishedRequestor(t, Config{
		ARTIMTimeout: 20 * time.Millisecond,
		OnExpire:     func(err error) { expired <- err },
	})

	select {
	case <-expired:
		t.Fatal("timer fired after establishment")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, StateEstablished, m.State())
}

func TestARTIMWhileAwaitingRequest(t *testing.T) {
	expired := make(chan error, 1)
	w := &recorder{}
	m := NewMachine(w, Config{
		ARTIMTimeout: 20 * time.Millisecond,
		OnExpire:     func(err error) { expired <- err },
	})
	m.AwaitRequest()

	select {
	case err := <-expired:
		var timeout *dicomerrors.TimeoutError
		assert.ErrorAs(t, err, &timeout)
	case <-time.After(2 * time.Second):
		t.Fatal("ARTIM did not expire")
	}
	assert.Zero(t, w.count(), "nothing to abort before a request")
}

func TestStateAndEventStrings(t *testing.T) {
	assert.Equal(t, "AwaitingLocalResponse", StateAwaitingLocalResponse.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "ReleaseCollision", EventReleaseCollision.String())
}
