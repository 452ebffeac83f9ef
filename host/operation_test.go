package host

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/types"
)

func findResponse(status uint16) *Response {
	return &Response{Command: &types.Message{CommandField: types.CFindRSP, Status: status}}
}

func detachedOperation(timeout time.Duration) *Operation {
	h := &Host{log: defaultOptions().logger, invoked: map[uint16]*Operation{}}
	op := newOperation(h, 1, &types.Message{CommandField: types.CFindRQ}, timeout)
	op.MessageID = 1
	h.invoked[1] = op
	return op
}

func TestOperationNextInOrder(t *testing.T) {
	op := detachedOperation(0)
	assert.False(t, op.deliver(findResponse(types.StatusPending)))
	assert.False(t, op.deliver(findResponse(types.StatusPendingWarning)))
	assert.True(t, op.deliver(findResponse(types.StatusSuccess)))
	assert.False(t, op.deliver(findResponse(types.StatusSuccess)), "nothing after the final response")

	ctx := context.Background()
	var statuses []uint16
	for {
		rsp, err := op.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		statuses = append(statuses, rsp.Command.Status)
	}
	assert.Equal(t, []uint16{types.StatusPending, types.StatusPendingWarning, types.StatusSuccess}, statuses)

	final, err := op.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, final.Command.Status)
	assert.NoError(t, op.Err())
}

func TestOperationFailAfterPending(t *testing.T) {
	op := detachedOperation(0)
	op.deliver(findResponse(types.StatusPending))
	cause := &dicomerrors.ClosedError{}
	assert.True(t, op.fail(cause))
	assert.False(t, op.fail(errors.New("second")), "one terminal event")

	ctx := context.Background()
	rsp, err := op.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, rsp.Command.Status)

	_, err = op.Next(ctx)
	assert.ErrorIs(t, err, dicomerrors.ErrAssociationClosed)

	_, err = op.Wait(ctx)
	assert.ErrorIs(t, err, dicomerrors.ErrAssociationClosed)
	select {
	case <-op.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestOperationNextBlocksUntilDelivery(t *testing.T) {
	op := detachedOperation(0)
	go func() {
		time.Sleep(20 * time.Millisecond)
		op.deliver(findResponse(types.StatusSuccess))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rsp, err := op.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, rsp.Command.Status)
}

func TestOperationContextCanceled(t *testing.T) {
	op := detachedOperation(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := op.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = op.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOperationTimeout(t *testing.T) {
	op := detachedOperation(30 * time.Millisecond)
	op.startTimer()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := op.Wait(ctx)
	var timeout *dicomerrors.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 30*time.Millisecond, timeout.Duration)
	assert.Zero(t, op.host.Outstanding(), "timed out operation is forgotten")
}

func TestOperationPendingResetsTimeout(t *testing.T) {
	op := detachedOperation(60 * time.Millisecond)
	op.startTimer()

	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		op.deliver(findResponse(types.StatusPending))
	}
	op.deliver(findResponse(types.StatusSuccess))

	final, err := op.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, final.Command.Status)
}
