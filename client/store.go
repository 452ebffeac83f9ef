package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/dicom"
	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/host"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// CStoreRequest represents a C-STORE request. Data may be a bare data set
// or a whole Part 10 file; the file header is stripped and its meta
// information fills in missing UIDs.
type CStoreRequest struct {
	SOPClassUID    string
	SOPInstanceUID string
	Data           []byte
	Priority       uint16
	// TransferSyntaxUID, when set, restricts the presentation context to
	// one negotiated with this syntax.
	TransferSyntaxUID string
}

// CStoreResponse represents a C-STORE response
type CStoreResponse struct {
	Status         uint16
	MessageID      uint16
	SOPClassUID    string
	SOPInstanceUID string
}

// SendCStore sends a C-STORE request and waits for response
func (a *Association) SendCStore(ctx context.Context, req *CStoreRequest) (*CStoreResponse, error) {
	r, err := a.storeRequest(req)
	if err != nil {
		return nil, err
	}
	rsp, id, err := a.invoke(ctx, r)
	if err != nil {
		return nil, errors.Wrapf(err, "C-STORE %s", r.Command.AffectedSOPInstanceUID)
	}
	a.logger.Debugw("C-STORE completed",
		"sop_class", types.UIDName(r.Command.AffectedSOPClassUID),
		"sop_instance", r.Command.AffectedSOPInstanceUID,
		"data_size", len(r.Data),
		"status", rsp.Command.Status)

	out := &CStoreResponse{
		Status:         rsp.Command.Status,
		MessageID:      id,
		SOPClassUID:    rsp.Command.AffectedSOPClassUID,
		SOPInstanceUID: rsp.Command.AffectedSOPInstanceUID,
	}
	if out.SOPInstanceUID == "" {
		out.SOPInstanceUID = r.Command.AffectedSOPInstanceUID
	}
	return out, nil
}

func (a *Association) storeRequest(req *CStoreRequest) (host.Request, error) {
	if req == nil {
		return host.Request{}, errors.Wrap(dicomerrors.ErrInvalidMessage, "c-store request cannot be nil")
	}
	data := req.Data
	classUID, instanceUID, ts := req.SOPClassUID, req.SOPInstanceUID, req.TransferSyntaxUID
	if dicom.HasPart10Header(data) {
		f, err := dicom.ParseFile(data)
		if err != nil {
			return host.Request{}, err
		}
		data = f.DataSet
		if classUID == "" {
			classUID = f.MediaStorageSOPClassUID
		}
		if instanceUID == "" {
			instanceUID = f.MediaStorageSOPInstanceUID
		}
		if ts == "" {
			ts = f.TransferSyntaxUID
		}
	}
	if classUID == "" || instanceUID == "" {
		return host.Request{}, errors.Wrap(dicomerrors.ErrInvalidMessage, "c-store request needs SOP class and instance UIDs")
	}
	if len(data) == 0 {
		return host.Request{}, errors.Wrap(dicomerrors.ErrInvalidMessage, "c-store request requires a dataset")
	}

	r := host.Request{
		Command: &types.Message{
			CommandField:           types.CStoreRQ,
			Priority:               priorityOrDefault(req.Priority),
			AffectedSOPClassUID:    classUID,
			AffectedSOPInstanceUID: instanceUID,
		},
		Data: data,
	}
	if ts != "" {
		r.TransferSyntaxes = []string{ts}
	}
	return r, nil
}
