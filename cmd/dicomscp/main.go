package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/config"
	"github.com/caio-sobreiro/dicomassoc/interfaces"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/server"
	"github.com/caio-sobreiro/dicomassoc/services"
	"github.com/caio-sobreiro/dicomassoc/types"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	listen := flag.String("listen", "", "Address to listen on (overrides the configuration)")
	aeTitle := flag.String("ae", "", "Server AE Title (overrides the configuration)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			dlog.Log.Errorw("Failed to load configuration", "error", err, "file", *configPath)
			os.Exit(1)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *aeTitle != "" {
		cfg.AETitle = *aeTitle
	}
	if err := cfg.Validate(); err != nil {
		dlog.Log.Errorw("Invalid configuration", "error", err)
		os.Exit(1)
	}
	dlog.SetLevel(cfg.LogLevel)
	log := dlog.WithFields("ae_title", cfg.AETitle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newArchive(cfg.StorageDir, log)
	if err != nil {
		log.Errorw("Failed to open archive", "error", err)
		os.Exit(1)
	}

	registry := services.NewRegistry().WithLogger(log)
	for cmd, handler := range map[types.CommandField]interfaces.ServiceHandler{
		types.CEchoRQ:  services.NewEchoService(),
		types.CStoreRQ: services.NewStoreService(store.store),
		types.CFindRQ:  services.NewFindService(nil),
		types.CGetRQ:   services.NewGetService(store.all),
	} {
		if err := registry.RegisterHandler(cmd, handler); err != nil {
			log.Errorw("Failed to register handler", "error", err, "command_field", cmd.String())
			os.Exit(1)
		}
	}

	opts, err := cfg.ServerOptions()
	if err != nil {
		log.Errorw("Invalid negotiation policy", "error", err)
		os.Exit(1)
	}
	opts = append(opts, server.WithLogger(log))

	err = server.ListenAndServe(ctx, cfg.Listen, cfg.AETitle, registry, opts...)
	switch {
	case err == nil:
		log.Infow("DICOM server shutdown complete")
	case errors.Is(err, context.Canceled):
		log.Infow("DICOM server stopped", "reason", err.Error())
	default:
		log.Errorw("DICOM server terminated unexpectedly", "error", err)
		os.Exit(1)
	}
}
