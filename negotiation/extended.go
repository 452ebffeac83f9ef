package negotiation

import "github.com/caio-sobreiro/dicomassoc/pdu"

// NegotiateAsyncOps answers a proposed asynchronous operations window with
// the acceptor's own limits. Both windows count operations from the
// requestor's point of view. A nil result means the item is omitted from the
// A-ASSOCIATE-AC, which leaves both sides at one outstanding operation.
func NegotiateAsyncOps(proposed, local *pdu.AsyncOperationsWindow) *pdu.AsyncOperationsWindow {
	if proposed == nil || local == nil {
		return nil
	}
	w := &pdu.AsyncOperationsWindow{
		MaxOpsInvoked:   minLimit(proposed.MaxOpsInvoked, local.MaxOpsInvoked),
		MaxOpsPerformed: minLimit(proposed.MaxOpsPerformed, local.MaxOpsPerformed),
	}
	if w.MaxOpsInvoked == 1 && w.MaxOpsPerformed == 1 {
		return nil
	}
	return w
}

// minLimit returns the tighter of two limits where zero means unlimited.
func minLimit(a, b uint16) uint16 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// Limits returns the invoked and performed limits an accepted window grants
// the requestor. Zero means unlimited.
func Limits(w *pdu.AsyncOperationsWindow) (invoked, performed int) {
	if w == nil {
		return 1, 1
	}
	return int(w.MaxOpsInvoked), int(w.MaxOpsPerformed)
}

// NegotiateRoles confirms the proposed role selections for abstract syntaxes
// that were accepted. Selections for rejected or unknown syntaxes are dropped.
func NegotiateRoles(proposed []pdu.RoleSelection, results []Result) []pdu.RoleSelection {
	accepted := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Accepted() {
			accepted[r.AbstractSyntax] = true
		}
	}

	var out []pdu.RoleSelection
	for _, rs := range proposed {
		if accepted[rs.SOPClassUID] {
			out = append(out, rs)
		}
	}
	return out
}
