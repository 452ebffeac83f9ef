// Package client is the requestor side: it dials an SCP, negotiates an
// association and issues DIMSE requests over it.
package client

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/hsdfat/go-zlog/logger"
	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/association"
	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/host"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/negotiation"
	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/services"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// DefaultAbstractSyntaxes are proposed when Config.AbstractSyntaxes is empty.
var DefaultAbstractSyntaxes = []string{
	types.CTImageStorage,
	types.MRImageStorage,
	types.SecondaryCaptureImageStorage,
	types.VerificationSOPClass,
	types.StudyRootQueryRetrieveInformationModelFind,
	types.StudyRootQueryRetrieveInformationModelGet,
	types.StudyRootQueryRetrieveInformationModelMove,
}

// Association is a client-side DICOM association.
type Association struct {
	host   *host.Host
	logger logger.LoggerI
	config Config
}

// Config holds client configuration
type Config struct {
	CallingAETitle string
	CalledAETitle  string
	MaxPDULength   uint32
	ConnectTimeout time.Duration // Timeout for establishing the TCP connection (default: 30s)
	ARTIMTimeout   time.Duration // Timeout for association setup and release (default: host default)
	MessageTimeout time.Duration // Timeout between responses to one request (default: 60s)
	ReleaseGrace   time.Duration // How long Release waits for outstanding requests (default: host default)
	Logger         logger.LoggerI

	// AbstractSyntaxes are proposed one presentation context each, with
	// PreferredTransferSyntaxes in order.
	AbstractSyntaxes          []string
	PreferredTransferSyntaxes []string // default: Explicit VR, Implicit VR

	// AsyncOps proposes an asynchronous operations window. Nil proposes
	// nothing, which allows one outstanding request each way.
	AsyncOps *pdu.AsyncOperationsWindow

	// StoreHandler receives the instances a C-GET sends back. Setting it
	// proposes the SCP role for every storage class offered.
	StoreHandler services.StoreFunc

	EventSink host.EventSink
	Tap       host.Tap
}

func (c *Config) applyDefaults() {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = host.DefaultMaxPDULength
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.MessageTimeout == 0 {
		c.MessageTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = dlog.Log
	}
	if len(c.AbstractSyntaxes) == 0 {
		c.AbstractSyntaxes = DefaultAbstractSyntaxes
	}
	if len(c.PreferredTransferSyntaxes) == 0 {
		c.PreferredTransferSyntaxes = []string{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian}
	}
}

// Connect dials address and establishes a DICOM association with the SCP
// listening there.
func Connect(ctx context.Context, address string, config Config) (*Association, error) {
	config.applyDefaults()

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, dicomerrors.NewNetworkError("dial "+address, err)
	}
	return NewAssociation(ctx, conn, config)
}

// NewAssociation establishes an association over an open transport. conn
// is closed if that fails.
func NewAssociation(ctx context.Context, conn io.ReadWriteCloser, config Config) (*Association, error) {
	config.applyDefaults()

	contexts, err := negotiation.Propose(config.AbstractSyntaxes, config.PreferredTransferSyntaxes)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	opts := []host.Option{
		host.WithLogger(config.Logger),
		host.WithMaxPDULength(config.MaxPDULength),
		host.WithMessageTimeout(config.MessageTimeout),
		host.WithEventSink(config.EventSink),
	}
	if config.ARTIMTimeout > 0 {
		opts = append(opts, host.WithARTIMTimeout(config.ARTIMTimeout))
	}
	if config.ReleaseGrace > 0 {
		opts = append(opts, host.WithReleaseGrace(config.ReleaseGrace))
	}
	if config.AsyncOps != nil {
		opts = append(opts, host.WithAsyncOps(config.AsyncOps.MaxOpsInvoked, config.AsyncOps.MaxOpsPerformed))
	}
	if config.Tap != nil {
		opts = append(opts, host.WithTap(config.Tap))
	}

	var roles []pdu.RoleSelection
	if config.StoreHandler != nil {
		registry := services.NewRegistry().WithLogger(config.Logger)
		if err := registry.RegisterHandler(types.CStoreRQ, services.NewStoreService(config.StoreHandler)); err != nil {
			_ = conn.Close()
			return nil, err
		}
		opts = append(opts, host.WithHandler(registry))
		for _, uid := range config.AbstractSyntaxes {
			if types.CategoryOf(uid) == types.CategoryStorage {
				roles = append(roles, pdu.RoleSelection{SOPClassUID: uid, SCURole: true, SCPRole: true})
			}
		}
	}

	h, err := host.Open(ctx, conn, host.Proposal{
		CallingAETitle: config.CallingAETitle,
		CalledAETitle:  config.CalledAETitle,
		Contexts:       contexts,
		RoleSelections: roles,
	}, opts...)
	if err != nil {
		return nil, err
	}

	a := &Association{host: h, logger: config.Logger, config: config}
	a.logger.Infow("DICOM association established",
		"calling_ae", config.CallingAETitle,
		"called_ae", config.CalledAETitle,
		"contexts_accepted", len(h.Association().AcceptedContexts()))
	return a, nil
}

// Host is the service host running the association.
func (a *Association) Host() *host.Host {
	return a.host
}

// Info is the negotiated association.
func (a *Association) Info() *association.Association {
	return a.host.Association()
}

// Done is closed when the association has ended.
func (a *Association) Done() <-chan struct{} {
	return a.host.Done()
}

// Release ends the association in an orderly way.
func (a *Association) Release(ctx context.Context) error {
	return a.host.Release(ctx)
}

// Close releases the association, aborting it if the peer does not answer.
func (a *Association) Close() error {
	if err := a.host.Release(context.Background()); err != nil {
		a.logger.Warnw("Release failed", "error", err)
		return err
	}
	return nil
}

// Abort drops the association at once.
func (a *Association) Abort() error {
	return a.host.Abort()
}

// GetPresentationContextID finds an accepted presentation context for the
// given abstract syntax.
func (a *Association) GetPresentationContextID(abstractSyntax string) (byte, error) {
	info := a.host.Association()
	if info == nil {
		return 0, &dicomerrors.ClosedError{Cause: a.host.Err()}
	}
	pc, ok := info.FindContext(abstractSyntax)
	if !ok {
		return 0, errors.Wrapf(dicomerrors.ErrNoPresentationCtx, "no accepted presentation context for abstract syntax: %s", abstractSyntax)
	}
	return pc.ID, nil
}

// invoke sends req and waits for its final response.
func (a *Association) invoke(ctx context.Context, req host.Request) (*host.Response, uint16, error) {
	op, err := a.host.SendRequest(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	rsp, err := op.Wait(ctx)
	if err != nil {
		return nil, op.MessageID, err
	}
	return rsp, op.MessageID, nil
}

func priorityOrDefault(p uint16) uint16 {
	switch p {
	case types.PriorityHigh, types.PriorityLow:
		return p
	default:
		return types.PriorityMedium
	}
}
