package services

import (
	"context"

	"github.com/hsdfat/go-zlog/logger"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/interfaces"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Instance is one composite object a retrieve sends back.
type Instance struct {
	SOPClassUID    string
	SOPInstanceUID string
	Data           []byte
}

// SourceFunc resolves a C-GET identifier to the instances to send.
type SourceFunc func(ctx context.Context, msg *types.Message, query []byte) ([]Instance, error)

// GetService performs C-GET by storing every matching instance on the
// requestor over the same association, reporting progress with pending
// responses carrying the sub-operation counters.
type GetService struct {
	source SourceFunc
	log    logger.LoggerI
}

func NewGetService(source SourceFunc) *GetService {
	return &GetService{source: source, log: dlog.Log}
}

func (s *GetService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	return nil, nil, dicomerrors.NewDIMSEError("C-GET", types.StatusUnrecognizedOperation, "C-GET needs a streaming host")
}

func (s *GetService) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, responder interfaces.ResponseSender) error {
	getter, ok := responder.(interfaces.CGetResponder)
	if !ok {
		return responder.SendResponse(NewCGetErrorResponse(msg, types.StatusUnrecognizedOperation), nil)
	}

	var instances []Instance
	if s.source != nil {
		var err error
		if instances, err = s.source(ctx, msg, data); err != nil {
			s.log.Errorw("C-GET source failed", "message_id", msg.MessageID, "error", err)
			return responder.SendResponse(NewCGetErrorResponse(msg, types.StatusFailure), nil)
		}
	}

	var completed, failed, warning uint16
	remaining := uint16(len(instances))
	for _, inst := range instances {
		if ctx.Err() != nil {
			return responder.SendResponse(NewCGetResponse(msg, types.StatusCancel, completed, failed, warning, remaining), nil)
		}

		status, err := getter.SendCStore(ctx, inst.SOPClassUID, inst.SOPInstanceUID, inst.Data)
		remaining--
		switch {
		case err != nil:
			s.log.Warnw("C-STORE sub-operation failed",
				"message_id", msg.MessageID,
				"sop_instance", inst.SOPInstanceUID,
				"error", err)
			failed++
		case status == types.StatusSuccess:
			completed++
		case status&0xF000 == 0xB000:
			warning++
		default:
			failed++
		}

		if remaining > 0 {
			if err := responder.SendResponse(NewCGetResponse(msg, types.StatusPending, completed, failed, warning, remaining), nil); err != nil {
				return err
			}
		}
	}

	final := types.StatusSuccess
	if failed > 0 || warning > 0 {
		final = types.StatusSubOperationsCompleteWarnings
	}
	return responder.SendResponse(NewCGetResponse(msg, final, completed, failed, warning, 0), nil)
}
