// Package server accepts DICOM associations on a listener and performs
// their requests with a service handler.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hsdfat/go-zlog/logger"
	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/host"
	"github.com/caio-sobreiro/dicomassoc/interfaces"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/negotiation"
	"github.com/caio-sobreiro/dicomassoc/pdu"
)

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(l logger.LoggerI) Option {
	return func(s *Server) {
		s.Logger = l
	}
}

// WithReadTimeout closes a connection that stays silent for timeout.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.ReadTimeout = timeout
	}
}

// WithWriteTimeout bounds every write to a connection.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.WriteTimeout = timeout
	}
}

// WithPolicy sets the presentation context policy. The default is
// negotiation.DefaultPolicy.
func WithPolicy(p negotiation.Policy) Option {
	return func(s *Server) {
		s.Policy = p
	}
}

// WithStrictAETitle rejects associations whose called AE title is not the
// server's.
func WithStrictAETitle() Option {
	return func(s *Server) {
		s.StrictAETitle = true
	}
}

// WithRejectWhenNoContexts rejects associations proposing nothing the
// policy accepts instead of accepting them empty.
func WithRejectWhenNoContexts() Option {
	return func(s *Server) {
		s.RejectWhenNoContexts = true
	}
}

// WithMaxAssociations rejects new associations, transiently, while n are
// established. Zero means no limit.
func WithMaxAssociations(n int) Option {
	return func(s *Server) {
		s.MaxAssociations = n
	}
}

// WithAcceptor replaces the built-in association checks entirely.
func WithAcceptor(a host.Acceptor) Option {
	return func(s *Server) {
		s.acceptor = a
	}
}

// WithHostOptions passes options to the host of every association.
func WithHostOptions(opts ...host.Option) Option {
	return func(s *Server) {
		s.hostOpts = append(s.hostOpts, opts...)
	}
}

// Server exposes a reusable DICOM listener that wires associations to a
// service handler.
type Server struct {
	AETitle              string
	Handler              interfaces.ServiceHandler
	Logger               logger.LoggerI
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	Policy               negotiation.Policy
	StrictAETitle        bool
	RejectWhenNoContexts bool
	MaxAssociations      int

	acceptor host.Acceptor
	hostOpts []host.Option
	active   atomic.Int32
}

// New builds a Server with the provided AE title and handler.
func New(aeTitle string, handler interfaces.ServiceHandler, opts ...Option) *Server {
	srv := &Server{AETitle: aeTitle, Handler: handler}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// ListenAndServe listens on the given address and serves until the context is done or an error occurs.
func ListenAndServe(ctx context.Context, address, aeTitle string, handler interfaces.ServiceHandler, opts ...Option) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return dicomerrors.NewNetworkError("listen", err)
	}
	defer listener.Close()

	srv := New(aeTitle, handler, opts...)
	return srv.Serve(ctx, listener)
}

// Active is the number of established associations.
func (s *Server) Active() int {
	return int(s.active.Load())
}

// Serve accepts connections from listener until ctx is cancelled or an
// unrecoverable error occurs. Associations still up when ctx ends are
// aborted.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("dicomserver: listener is required")
	}
	if s == nil {
		return errors.New("dicomserver: server is nil")
	}
	if s.Handler == nil {
		return errors.New("dicomserver: handler is required")
	}
	if s.AETitle == "" {
		return errors.New("dicomserver: AE title is required")
	}

	log := s.logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	log.Infow("DICOM server listening",
		"address", listener.Addr().String(),
		"ae_title", s.AETitle)

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Warnw("Accept timeout", "error", err)
				continue
			}
			serveErr = dicomerrors.NewNetworkError("accept", err)
			break
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(ctx, c, log)
		}(conn)
	}

	wg.Wait()

	if serveErr != nil {
		return serveErr
	}

	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, log logger.LoggerI) {
	log.Infow("Accepted DICOM connection",
		"remote_addr", conn.RemoteAddr().String())

	var transport net.Conn = conn
	if s.ReadTimeout > 0 || s.WriteTimeout > 0 {
		transport = &deadlineConn{Conn: conn, read: s.ReadTimeout, write: s.WriteTimeout}
	}

	opts := append([]host.Option{host.WithLogger(log)}, s.hostOpts...)
	h, err := host.Accept(ctx, transport, s, s.Handler, opts...)
	if err != nil {
		var negErr *dicomerrors.NegotiationError
		if errors.As(err, &negErr) {
			log.Infow("Association rejected", "remote_addr", conn.RemoteAddr().String(), "error", err)
		} else if ctx.Err() == nil {
			log.Warnw("Association setup failed", "remote_addr", conn.RemoteAddr().String(), "error", err)
		}
		return
	}

	s.active.Add(1)
	defer s.active.Add(-1)

	select {
	case <-h.Done():
	case <-ctx.Done():
		_ = h.Abort()
		<-h.Done()
	}

	if err := h.Err(); err != nil && ctx.Err() == nil {
		log.Warnw("DIMSE connection ended",
			"error", err,
			"remote_addr", conn.RemoteAddr().String())
	} else {
		log.Infow("DIMSE connection closed",
			"remote_addr", conn.RemoteAddr().String())
	}
}

// OnIncomingAssociation applies the server's checks to a request.
func (s *Server) OnIncomingAssociation(rq *pdu.AssociateRQ) host.Decision {
	if s.acceptor != nil {
		return s.acceptor.OnIncomingAssociation(rq)
	}
	if s.StrictAETitle && rq.CalledAETitle != s.AETitle {
		return host.Decision{Reject: &pdu.AssociateRJ{
			Result: byte(dicomerrors.RejectResultPermanent),
			Source: byte(dicomerrors.RejectSourceServiceUser),
			Reason: byte(dicomerrors.RejectReasonCalledAETitleNotRecognized),
		}}
	}
	if s.MaxAssociations > 0 && s.Active() >= s.MaxAssociations {
		return host.Decision{Reject: &pdu.AssociateRJ{
			Result: byte(dicomerrors.RejectResultTransient),
			Source: byte(dicomerrors.RejectSourceServiceProviderPres),
			Reason: byte(dicomerrors.RejectReasonLocalLimitExceeded),
		}}
	}
	return host.Decision{Policy: s.Policy, RejectWhenNoContexts: s.RejectWhenNoContexts}
}

func (s *Server) logger() logger.LoggerI {
	if s.Logger != nil {
		return s.Logger
	}
	return dlog.Log
}

// deadlineConn pushes the connection deadlines forward on every read and
// write.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
