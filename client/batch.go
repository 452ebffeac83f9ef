package client

import (
	"context"

	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/host"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Batch queues requests and sends them together, keeping as many
// outstanding as the negotiated window allows.
type Batch struct {
	a        *Association
	requests []host.Request
}

// Result is the outcome of one batched request.
type Result struct {
	Request  host.Request
	Response *host.Response
	Err      error
}

// NewBatch starts an empty batch on the association.
func (a *Association) NewBatch() *Batch {
	return &Batch{a: a}
}

// Add queues a request.
func (b *Batch) Add(req host.Request) *Batch {
	b.requests = append(b.requests, req)
	return b
}

// AddCEcho queues a verification request.
func (b *Batch) AddCEcho() *Batch {
	return b.Add(host.Request{Command: &types.Message{
		CommandField:        types.CEchoRQ,
		AffectedSOPClassUID: types.VerificationSOPClass,
	}})
}

// AddCStore queues a C-STORE, stripping a Part 10 header as SendCStore does.
func (b *Batch) AddCStore(req *CStoreRequest) error {
	r, err := b.a.storeRequest(req)
	if err != nil {
		return err
	}
	b.Add(r)
	return nil
}

// Len is the number of queued requests.
func (b *Batch) Len() int {
	return len(b.requests)
}

type inflight struct {
	index int
	op    *host.Operation
}

// Send issues every queued request and waits for all final responses.
// Results are in queue order. Failures of single requests are reported in
// their Result; the error is only set when ctx ends. The batch is empty
// afterwards.
func (b *Batch) Send(ctx context.Context) ([]Result, error) {
	requests := b.requests
	b.requests = nil
	results := make([]Result, len(requests))

	var window []inflight
	collect := func(f inflight) {
		rsp, err := f.op.Wait(ctx)
		results[f.index].Response = rsp
		results[f.index].Err = err
	}

	for i, req := range requests {
		results[i].Request = req
		for {
			op, err := b.a.host.SendRequest(ctx, req)
			if errors.Is(err, dicomerrors.ErrCapacityExceeded) && len(window) > 0 {
				collect(window[0])
				window = window[1:]
				continue
			}
			if err != nil {
				results[i].Err = err
			} else {
				window = append(window, inflight{index: i, op: op})
			}
			break
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	for _, f := range window {
		collect(f)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	b.a.logger.Debugw("Batch sent", "requests", len(requests), "failed", failed)
	return results, ctx.Err()
}
