package services

import (
	"context"
	"sync"

	"github.com/hsdfat/go-zlog/logger"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/interfaces"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Registry routes incoming requests to the handler registered for their
// command field. It is itself a StreamingServiceHandler, so a host can be
// given a Registry as its only handler.
//
// Example usage:
//
//	registry := services.NewRegistry()
//	registry.RegisterHandler(types.CEchoRQ, services.NewEchoService())
//	registry.RegisterHandler(types.CStoreRQ, services.NewStoreService(save))
type Registry struct {
	mu       sync.RWMutex
	handlers map[types.CommandField]interfaces.ServiceHandler
	log      logger.LoggerI
}

// NewRegistry creates an empty registry logging to the global logger.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[types.CommandField]interfaces.ServiceHandler),
		log:      dlog.Log,
	}
}

// WithLogger replaces the registry logger and returns the registry.
func (r *Registry) WithLogger(l logger.LoggerI) *Registry {
	if l != nil {
		r.log = l
	}
	return r
}

// RegisterHandler registers handler for commandField, replacing any previous
// one. Only request commands can be registered; C-CANCEL-RQ is handled by
// the host.
func (r *Registry) RegisterHandler(commandField types.CommandField, handler interfaces.ServiceHandler) error {
	if !commandField.IsRequest() || commandField == types.CCancelRQ {
		return dicomerrors.NewDIMSEError(commandField.String(), types.StatusUnrecognizedOperation, "not a dispatchable request")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[commandField] = handler
	return nil
}

// UnregisterHandler removes the handler for commandField.
func (r *Registry) UnregisterHandler(commandField types.CommandField) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, commandField)
}

func (r *Registry) lookup(msg *types.Message) (interfaces.ServiceHandler, error) {
	r.mu.RLock()
	handler, ok := r.handlers[msg.CommandField]
	r.mu.RUnlock()
	if !ok {
		r.log.Warnw("No handler registered for DIMSE command",
			"command_field", msg.CommandField.String(),
			"message_id", msg.MessageID)
		return nil, dicomerrors.NewDIMSEError(msg.CommandField.String(), types.StatusUnrecognizedOperation, "unsupported DIMSE command")
	}
	return handler, nil
}

// HandleDIMSE routes a single-response request. A missing handler yields a
// *errors.DIMSEError carrying StatusUnrecognizedOperation.
func (r *Registry) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	r.log.Debugw("Routing DIMSE message",
		"command_field", msg.CommandField.String(),
		"message_id", msg.MessageID)

	handler, err := r.lookup(msg)
	if err != nil {
		return nil, nil, err
	}
	return handler.HandleDIMSE(ctx, msg, data)
}

// HandleDIMSEStreaming routes a request that may be answered several times.
// Handlers that do not stream are called once and their response is sent
// through responder.
func (r *Registry) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, responder interfaces.ResponseSender) error {
	r.log.Debugw("Routing streaming DIMSE message",
		"command_field", msg.CommandField.String(),
		"message_id", msg.MessageID)

	handler, err := r.lookup(msg)
	if err != nil {
		return err
	}

	if streaming, ok := handler.(interfaces.StreamingServiceHandler); ok {
		return streaming.HandleDIMSEStreaming(ctx, msg, data, responder)
	}

	rsp, rspData, err := handler.HandleDIMSE(ctx, msg, data)
	if err != nil {
		return err
	}
	if rsp == nil {
		return dicomerrors.NewDIMSEError(msg.CommandField.String(), types.StatusFailure, "handler returned no response")
	}
	return responder.SendResponse(rsp, rspData)
}

// HasHandler reports whether a handler is registered for commandField.
func (r *Registry) HasHandler(commandField types.CommandField) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[commandField]
	return ok
}

// RegisteredCommands lists the registered command fields in the order of
// types.RequestCommands.
func (r *Registry) RegisteredCommands() []types.CommandField {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var commands []types.CommandField
	for _, cmd := range types.RequestCommands() {
		if _, ok := r.handlers[cmd]; ok {
			commands = append(commands, cmd)
		}
	}
	return commands
}

// CreateErrorResponse builds a data-set-less failure response to req.
func CreateErrorResponse(req *types.Message, status uint16) *types.Message {
	return types.NewResponse(req, status)
}
