package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hsdfat/go-zlog/logger"
	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/capture"
	"github.com/caio-sobreiro/dicomassoc/client"
	"github.com/caio-sobreiro/dicomassoc/config"
	"github.com/caio-sobreiro/dicomassoc/dicom"
	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/types"
)

const usage = `usage: dicomscu <command> [flags] [files]

commands:
  echo    verify the peer with C-ECHO
  store   send Part 10 files with C-STORE; bare data sets need -class
`

type options struct {
	config   string
	address  string
	calling  string
	called   string
	capture  string
	sopClass string
	syntax   string
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.config, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&o.address, "addr", "", "Peer address host:port (overrides the configuration)")
	fs.StringVar(&o.calling, "ae", "", "Calling AE Title (overrides the configuration)")
	fs.StringVar(&o.called, "called", "", "Called AE Title (overrides the configuration)")
	fs.StringVar(&o.capture, "capture", "", "Write the exchanged PDUs to this pcap file")
	fs.StringVar(&o.sopClass, "class", "", "SOP Class UID for files without a Part 10 header")
	fs.StringVar(&o.syntax, "ts", types.ImplicitVRLittleEndian, "Transfer syntax of files without a Part 10 header")
}

func (o *options) load() (*config.Config, error) {
	cfg := config.Default()
	if o.config != "" {
		var err error
		if cfg, err = config.Load(o.config); err != nil {
			return nil, err
		}
	}
	if o.address != "" {
		cfg.Peer.Address = o.address
	}
	if o.calling != "" {
		cfg.AETitle = o.calling
	}
	if o.called != "" {
		cfg.Peer.AETitle = o.called
	}
	if o.capture != "" {
		cfg.Capture = o.capture
	}
	return cfg, cfg.Validate()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var opts options
	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	opts.register(fs)
	_ = fs.Parse(os.Args[2:])

	var run func(ctx context.Context, a *client.Association, log logger.LoggerI, args []string) error
	switch os.Args[1] {
	case "echo":
		run = echo
	case "store":
		run = opts.store
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := opts.load()
	if err != nil {
		dlog.Log.Errorw("Invalid configuration", "error", err)
		os.Exit(1)
	}
	dlog.SetLevel(cfg.LogLevel)
	log := dlog.WithFields("calling_ae", cfg.AETitle, "called_ae", cfg.Peer.AETitle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, rec, err := connect(ctx, cfg, log)
	if err != nil {
		log.Errorw("Association failed", "error", err, "address", cfg.Peer.Address)
		os.Exit(1)
	}
	if rec != nil {
		defer rec.Close()
	}

	err = run(ctx, a, log, fs.Args())
	if relErr := a.Release(ctx); relErr != nil && !errors.Is(relErr, dicomerrors.ErrAssociationClosed) {
		log.Warnw("Release failed", "error", relErr)
	}
	if err != nil {
		log.Errorw("Command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, cfg *config.Config, log logger.LoggerI) (*client.Association, *capture.Recorder, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeouts.Connect}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Peer.Address)
	if err != nil {
		return nil, nil, dicomerrors.NewNetworkError("dial "+cfg.Peer.Address, err)
	}

	cc := client.Config{
		CallingAETitle: cfg.AETitle,
		CalledAETitle:  cfg.Peer.AETitle,
		MaxPDULength:   cfg.MaxPDULength,
		ConnectTimeout: cfg.Timeouts.Connect,
		ARTIMTimeout:   cfg.Timeouts.ARTIM,
		MessageTimeout: cfg.Timeouts.Message,
		ReleaseGrace:   cfg.Timeouts.ReleaseGrace,
		Logger:         log,
	}
	if cfg.AsyncOps != nil {
		cc.AsyncOps = &pdu.AsyncOperationsWindow{MaxOpsInvoked: cfg.AsyncOps.Invoked, MaxOpsPerformed: cfg.AsyncOps.Performed}
	}

	var rec *capture.Recorder
	if cfg.Capture != "" {
		if rec, err = capture.Create(cfg.Capture, conn.LocalAddr(), conn.RemoteAddr()); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		rec.WithLogger(log)
		cc.Tap = rec
	}

	a, err := client.NewAssociation(ctx, conn, cc)
	if err != nil {
		if rec != nil {
			_ = rec.Close()
		}
		return nil, nil, err
	}
	return a, rec, nil
}

func echo(ctx context.Context, a *client.Association, log logger.LoggerI, _ []string) error {
	rsp, err := a.SendCEcho(ctx)
	if err != nil {
		return err
	}
	log.Infow("C-ECHO completed", "status", fmt.Sprintf("0x%04X", rsp.Status), "message_id", rsp.MessageID)
	if rsp.Status != types.StatusSuccess {
		return dicomerrors.NewDIMSEError("C-ECHO", rsp.Status, "peer did not verify")
	}
	return nil
}

// storeRequest wraps one file. A Part 10 file names its own SOP class and
// instance; a bare data set is sent as -class under a generated instance UID.
func (o *options) storeRequest(data []byte) (*client.CStoreRequest, error) {
	if dicom.HasPart10Header(data) {
		return &client.CStoreRequest{Data: data}, nil
	}
	if o.sopClass == "" {
		return nil, errors.New("no Part 10 header and no -class given")
	}
	if !types.IsValidUID(o.sopClass) {
		return nil, errors.Errorf("invalid SOP class UID %q", o.sopClass)
	}
	return &client.CStoreRequest{
		SOPClassUID:       o.sopClass,
		SOPInstanceUID:    types.NewUID(),
		TransferSyntaxUID: o.syntax,
		Data:              data,
	}, nil
}

func (o *options) store(ctx context.Context, a *client.Association, log logger.LoggerI, files []string) error {
	if len(files) == 0 {
		return errors.New("store needs at least one file")
	}

	batch := a.NewBatch()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		req, err := o.storeRequest(data)
		if err != nil {
			return errors.Wrapf(err, "prepare %s", path)
		}
		if err := batch.AddCStore(req); err != nil {
			return errors.Wrapf(err, "prepare %s", path)
		}
	}

	results, err := batch.Send(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for i, r := range results {
		switch {
		case r.Err != nil:
			failed++
			log.Errorw("C-STORE failed", "file", files[i], "error", r.Err)
		case r.Response.Command.Status != types.StatusSuccess:
			failed++
			log.Warnw("C-STORE refused", "file", files[i], "status", fmt.Sprintf("0x%04X", r.Response.Command.Status))
		default:
			log.Infow("C-STORE completed", "file", files[i], "sop_instance", r.Request.Command.AffectedSOPInstanceUID)
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d files not stored", failed, len(files))
	}
	return nil
}
