package dimse

import (
	"fmt"

	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Message is a complete DIMSE message as it travelled on one presentation context.
type Message struct {
	ContextID    byte
	Command      *types.Message
	CommandBytes []byte
	// Data is nil when the command declares no data set.
	Data []byte
}

// EncodeMessage encodes cmd and fragments it together with data. The Command
// Data Set Type written to the wire follows data: nil means no data set.
func EncodeMessage(contextID byte, cmd *types.Message, data []byte, maxPDULength uint32) ([]*pdu.PDataTF, error) {
	c := *cmd
	switch {
	case data == nil:
		c.CommandDataSetType = types.NoDataSet
	case c.CommandDataSetType == types.NoDataSet:
		c.CommandDataSetType = types.DataSetPresent
	}
	command, err := EncodeCommand(&c)
	if err != nil {
		return nil, err
	}
	return Fragment(contextID, command, data, maxPDULength)
}

type partialMessage struct {
	command     []byte
	data        []byte
	decoded     *types.Message
	commandDone bool
}

// Reassembler joins PDVs back into messages. Command and data bytes are
// accumulated separately for each presentation context. It is not safe for
// concurrent use; the receive loop owns it.
type Reassembler struct {
	partial   map[byte]*partialMessage
	maxLength int
}

// ReassemblerOption configures a Reassembler.
type ReassemblerOption func(*Reassembler)

// WithMaxMessageLength bounds the command and data bytes held for one
// message. Zero or less means unlimited.
func WithMaxMessageLength(n int) ReassemblerOption {
	return func(r *Reassembler) { r.maxLength = n }
}

func NewReassembler(opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{partial: make(map[byte]*partialMessage)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// exceeds reports whether adding n bytes to p passes the message limit.
func (r *Reassembler) exceeds(p *partialMessage, n int) bool {
	return r.maxLength > 0 && len(p.command)+len(p.data)+n > r.maxLength
}

// Add consumes one PDV and returns the message it completes, if any.
func (r *Reassembler) Add(pdv pdu.PDV) (*Message, error) {
	p := r.partial[pdv.ContextID]

	if pdv.Command {
		if p != nil && p.commandDone {
			delete(r.partial, pdv.ContextID)
			return nil, r.violation(pdv, "command fragment after the command set was complete")
		}
		if p == nil {
			p = &partialMessage{}
			r.partial[pdv.ContextID] = p
		}
		if r.exceeds(p, len(pdv.Data)) {
			delete(r.partial, pdv.ContextID)
			return nil, r.violation(pdv, fmt.Sprintf("message exceeds %d bytes", r.maxLength))
		}
		p.command = append(p.command, pdv.Data...)
		if !pdv.Last {
			return nil, nil
		}

		decoded, err := DecodeCommand(p.command)
		if err != nil {
			delete(r.partial, pdv.ContextID)
			return nil, errors.Wrapf(err, "presentation context %d", pdv.ContextID)
		}
		p.decoded = decoded
		p.commandDone = true
		if !decoded.HasDataSet() {
			delete(r.partial, pdv.ContextID)
			return &Message{ContextID: pdv.ContextID, Command: decoded, CommandBytes: p.command}, nil
		}
		return nil, nil
	}

	if p == nil || !p.commandDone {
		delete(r.partial, pdv.ContextID)
		return nil, r.violation(pdv, "data fragment before the command set was complete")
	}
	if r.exceeds(p, len(pdv.Data)) {
		delete(r.partial, pdv.ContextID)
		return nil, r.violation(pdv, fmt.Sprintf("message exceeds %d bytes", r.maxLength))
	}
	p.data = append(p.data, pdv.Data...)
	if !pdv.Last {
		return nil, nil
	}

	delete(r.partial, pdv.ContextID)
	data := p.data
	if data == nil {
		data = []byte{}
	}
	return &Message{ContextID: pdv.ContextID, Command: p.decoded, CommandBytes: p.command, Data: data}, nil
}

func (r *Reassembler) violation(pdv pdu.PDV, msg string) error {
	return dicomerrors.NewProtocolError("Established", byte(pdu.TypePDataTF), fmt.Sprintf("context %d: %s", pdv.ContextID, msg))
}

// Pending returns the number of partially assembled messages.
func (r *Reassembler) Pending() int {
	return len(r.partial)
}

// Discard drops every partial message. It returns an error matching
// ErrIncompleteMessage when anything was dropped.
func (r *Reassembler) Discard() error {
	n := len(r.partial)
	clear(r.partial)
	if n == 0 {
		return nil
	}
	return errors.Wrapf(dicomerrors.ErrIncompleteMessage, "%d partial message(s) discarded", n)
}
