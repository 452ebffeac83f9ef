// Package services provides reusable DICOM service implementations that a
// host can dispatch incoming requests to.
package services

import (
	"context"

	"github.com/caio-sobreiro/dicomassoc/types"
)

// EchoService answers C-ECHO verification requests with success.
type EchoService struct{}

func NewEchoService() *EchoService {
	return &EchoService{}
}

// HandleDIMSE returns a C-ECHO-RSP with StatusSuccess. C-ECHO carries no
// data set in either direction.
func (s *EchoService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte) (*types.Message, []byte, error) {
	return NewCEchoResponse(msg, types.StatusSuccess), nil, nil
}

// HealthCheck reports whether the service can answer. Echo has no backend.
func (s *EchoService) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}
