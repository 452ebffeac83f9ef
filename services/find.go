package services

import (
	"context"

	"github.com/caio-sobreiro/dicomassoc/interfaces"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// MatchFunc returns the identifiers matching a C-FIND query identifier.
// Both are opaque encoded data sets.
type MatchFunc func(ctx context.Context, msg *types.Message, query []byte) ([][]byte, error)

// FindService streams one pending C-FIND-RSP per match followed by a final
// response. A canceled context ends the stream with StatusCancel.
type FindService struct {
	match MatchFunc
}

// NewFindService creates a find service. A nil match finds nothing.
func NewFindService(match MatchFunc) *FindService {
	return &FindService{match: match}
}

func (s *FindService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	var last *types.Message
	err := s.HandleDIMSEStreaming(ctx, msg, data, responderFunc(func(rsp *types.Message, _ []byte) error {
		last = rsp
		return nil
	}))
	return last, nil, err
}

func (s *FindService) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, responder interfaces.ResponseSender) error {
	var matches [][]byte
	if s.match != nil {
		var err error
		if matches, err = s.match(ctx, msg, data); err != nil {
			return responder.SendResponse(NewCFindErrorResponse(msg, types.StatusFailure), nil)
		}
	}

	for _, m := range matches {
		if ctx.Err() != nil {
			return responder.SendResponse(NewCFindErrorResponse(msg, types.StatusCancel), nil)
		}
		if err := responder.SendResponse(NewCFindPendingResponse(msg), m); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return responder.SendResponse(NewCFindErrorResponse(msg, types.StatusCancel), nil)
	}
	return responder.SendResponse(NewCFindSuccessResponse(msg), nil)
}

type responderFunc func(msg *types.Message, data []byte) error

func (f responderFunc) SendResponse(msg *types.Message, data []byte) error { return f(msg, data) }
