package services

import (
	"context"

	"github.com/hsdfat/go-zlog/logger"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// StoreFunc receives one C-STORE data set and returns the response status.
type StoreFunc func(ctx context.Context, msg *types.Message, data []byte) (uint16, error)

// StoreService performs C-STORE requests by handing each data set to a
// StoreFunc. Persisting the object is the caller's business.
type StoreService struct {
	store StoreFunc
	// EchoDataSet sends the received data set back with the response.
	EchoDataSet bool
	log         logger.LoggerI
}

// NewStoreService creates a store service. A nil store accepts everything.
func NewStoreService(store StoreFunc) *StoreService {
	return &StoreService{store: store, log: dlog.Log}
}

func (s *StoreService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	if data == nil {
		return nil, nil, dicomerrors.NewDIMSEError("C-STORE", types.StatusFailure, "request without data set")
	}

	status := types.StatusSuccess
	if s.store != nil {
		var err error
		status, err = s.store(ctx, msg, data)
		if err != nil {
			s.log.Errorw("C-STORE handler failed",
				"message_id", msg.MessageID,
				"sop_instance", msg.AffectedSOPInstanceUID,
				"error", err)
			return nil, nil, err
		}
	}

	s.log.Debugw("C-STORE performed",
		"message_id", msg.MessageID,
		"sop_class", types.UIDName(msg.AffectedSOPClassUID),
		"sop_instance", msg.AffectedSOPInstanceUID,
		"bytes", len(data),
		"status", status)

	rsp := NewCStoreResponse(msg, status)
	if s.EchoDataSet {
		rsp.CommandDataSetType = types.DataSetPresent
		return rsp, data, nil
	}
	return rsp, nil, nil
}
