package negotiation

import (
	"github.com/pkg/errors"

	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// MaxPresentationContexts is the number of odd context IDs between 1 and 255.
const MaxPresentationContexts = 128

// Result is the negotiated outcome of one presentation context.
type Result struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
	Result         pdu.PresentationResult
}

func (r Result) Accepted() bool {
	return r.Result == pdu.ResultAcceptance && r.TransferSyntax != ""
}

// Propose builds one presentation context per abstract syntax, all offering
// the same transfer syntaxes, with IDs 1, 3, 5 and so on.
func Propose(abstractSyntaxes []string, transferSyntaxes []string) ([]pdu.PresentationContextRQ, error) {
	if len(abstractSyntaxes) > MaxPresentationContexts {
		return nil, errors.Errorf("negotiation: %d abstract syntaxes exceed %d presentation contexts", len(abstractSyntaxes), MaxPresentationContexts)
	}
	if len(transferSyntaxes) == 0 {
		return nil, errors.New("negotiation: no transfer syntaxes to propose")
	}
	contexts := make([]pdu.PresentationContextRQ, 0, len(abstractSyntaxes))
	for i, as := range abstractSyntaxes {
		contexts = append(contexts, pdu.PresentationContextRQ{
			ID:               byte(2*i + 1),
			AbstractSyntax:   as,
			TransferSyntaxes: append([]string(nil), transferSyntaxes...),
		})
	}
	return contexts, nil
}

// Negotiate answers every proposed context, preserving IDs and order. The
// outcome depends only on the proposal and the policy.
func Negotiate(proposed []pdu.PresentationContextRQ, policy Policy) []Result {
	results := make([]Result, 0, len(proposed))
	seen := make(map[byte]bool, len(proposed))

	for _, pc := range proposed {
		res := Result{ID: pc.ID, AbstractSyntax: pc.AbstractSyntax}

		switch {
		case pc.ID%2 == 0 || seen[pc.ID]:
			res.Result = pdu.ResultNoReason
		case !types.IsValidUID(pc.AbstractSyntax):
			res.Result = pdu.ResultAbstractSyntaxNotSupported
		default:
			res.TransferSyntax, res.Result = decide(pc, policy)
		}
		seen[pc.ID] = true

		if res.Result != pdu.ResultAcceptance {
			res.TransferSyntax = ""
		}
		results = append(results, res)
	}
	return results
}

func decide(pc pdu.PresentationContextRQ, policy Policy) (string, pdu.PresentationResult) {
	candidates := make([]string, 0, len(pc.TransferSyntaxes))
	for _, ts := range pc.TransferSyntaxes {
		if types.IsValidUID(ts) {
			candidates = append(candidates, ts)
		}
	}
	if len(candidates) == 0 {
		return "", pdu.ResultTransferSyntaxesNotSupported
	}

	ts, result := policy.Accept(pc.AbstractSyntax, candidates)
	if result != pdu.ResultAcceptance {
		return "", result
	}
	for _, c := range candidates {
		if c == ts {
			return ts, pdu.ResultAcceptance
		}
	}
	// acceptance must name one of the proposed syntaxes
	return "", pdu.ResultNoReason
}

// ToAC converts results into the items of an A-ASSOCIATE-AC.
func ToAC(results []Result) []pdu.PresentationContextAC {
	items := make([]pdu.PresentationContextAC, 0, len(results))
	for _, r := range results {
		items = append(items, pdu.PresentationContextAC{
			ID:             r.ID,
			Result:         r.Result,
			TransferSyntax: r.TransferSyntax,
		})
	}
	return items
}

// Apply maps the acceptor's answers back onto what was proposed. Contexts the
// acceptor left out, or accepted with a syntax that was never offered, count
// as rejected.
func Apply(proposed []pdu.PresentationContextRQ, accepted []pdu.PresentationContextAC) []Result {
	byID := make(map[byte]pdu.PresentationContextAC, len(accepted))
	for _, ac := range accepted {
		byID[ac.ID] = ac
	}

	results := make([]Result, 0, len(proposed))
	for _, pc := range proposed {
		res := Result{ID: pc.ID, AbstractSyntax: pc.AbstractSyntax, Result: pdu.ResultNoReason}
		if ac, ok := byID[pc.ID]; ok {
			res.Result = ac.Result
			if ac.Result == pdu.ResultAcceptance {
				if contains(pc.TransferSyntaxes, ac.TransferSyntax) {
					res.TransferSyntax = ac.TransferSyntax
				} else {
					res.Result = pdu.ResultNoReason
				}
			}
		}
		results = append(results, res)
	}
	return results
}

// CountAccepted returns how many results were accepted.
func CountAccepted(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Accepted() {
			n++
		}
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
