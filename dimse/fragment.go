package dimse

import (
	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/pdu"
)

const (
	// DefaultMaxPDULength is used when the peer announced no limit.
	DefaultMaxPDULength uint32 = 16384
	// MinMaxPDULength is the smallest limit Fragment accepts.
	MinMaxPDULength uint32 = 16
)

// Fragment splits a command set and an optional data set into P-DATA-TF
// PDUs whose length field never exceeds maxPDULength. Command PDVs come
// first. A nil data means no data set; an empty non-nil data set produces one
// empty data PDV. The final PDV of the command and the final PDV of the data
// set carry the last flag. PDVs are packed into one PDU while they fit.
//
// The returned PDVs share memory with command and data.
func Fragment(contextID byte, command, data []byte, maxPDULength uint32) ([]*pdu.PDataTF, error) {
	if maxPDULength == 0 {
		maxPDULength = DefaultMaxPDULength
	}
	if maxPDULength < MinMaxPDULength {
		return nil, errors.Errorf("dimse: maximum PDU length %d below minimum %d", maxPDULength, MinMaxPDULength)
	}
	if len(command) == 0 {
		return nil, errors.Wrap(dicomerrors.ErrInvalidMessage, "empty command set")
	}

	f := fragmenter{contextID: contextID, max: maxPDULength}
	f.add(true, command)
	if data != nil {
		f.add(false, data)
	}
	return f.out, nil
}

type fragmenter struct {
	contextID byte
	max       uint32
	out       []*pdu.PDataTF
	used      uint32
}

func (f *fragmenter) add(command bool, payload []byte) {
	off := 0
	for {
		remaining := uint32(len(payload) - off)
		needed := uint32(pdu.PDVHeaderLength)
		if remaining > 0 {
			needed++
		}
		if len(f.out) == 0 || f.max-f.used < needed {
			f.out = append(f.out, &pdu.PDataTF{})
			f.used = 0
		}

		n := f.max - f.used - pdu.PDVHeaderLength
		if n > remaining {
			n = remaining
		}
		end := off + int(n)
		current := f.out[len(f.out)-1]
		current.Items = append(current.Items, pdu.PDV{
			ContextID: f.contextID,
			Command:   command,
			Last:      end == len(payload),
			Data:      payload[off:end],
		})
		f.used += pdu.PDVHeaderLength + n
		off = end

		if off == len(payload) {
			return
		}
	}
}
