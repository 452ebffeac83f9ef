// Package negotiation decides presentation contexts, asynchronous operation
// windows and role selections for an association.
package negotiation

import (
	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Policy chooses the transfer syntax for one proposed abstract syntax.
// candidates arrive in the proposer's preference order.
type Policy interface {
	Accept(abstractSyntax string, candidates []string) (string, pdu.PresentationResult)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(abstractSyntax string, candidates []string) (string, pdu.PresentationResult)

func (f PolicyFunc) Accept(abstractSyntax string, candidates []string) (string, pdu.PresentationResult) {
	return f(abstractSyntax, candidates)
}

// Rule accepts the abstract syntaxes Match selects with any of TransferSyntaxes.
type Rule struct {
	Name             string
	Match            func(abstractSyntax string) bool
	TransferSyntaxes []string
}

// ForAbstractSyntax matches a single abstract syntax.
func ForAbstractSyntax(uid string, transferSyntaxes ...string) Rule {
	return Rule{
		Name:             uid,
		Match:            func(as string) bool { return as == uid },
		TransferSyntaxes: transferSyntaxes,
	}
}

// ForCategory matches every abstract syntax of a registry category.
func ForCategory(category types.Category, transferSyntaxes ...string) Rule {
	return Rule{
		Name:             string(category),
		Match:            func(as string) bool { return types.CategoryOf(as) == category },
		TransferSyntaxes: transferSyntaxes,
	}
}

// ForAny matches every abstract syntax.
func ForAny(transferSyntaxes ...string) Rule {
	return Rule{
		Name:             "*",
		Match:            func(string) bool { return true },
		TransferSyntaxes: transferSyntaxes,
	}
}

// RulePolicy applies the first rule whose Match selects the abstract syntax.
type RulePolicy struct {
	rules []Rule
}

func NewRulePolicy(rules ...Rule) *RulePolicy {
	return &RulePolicy{rules: rules}
}

// Rules returns the configured rules in evaluation order.
func (p *RulePolicy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

func (p *RulePolicy) Accept(abstractSyntax string, candidates []string) (string, pdu.PresentationResult) {
	for _, rule := range p.rules {
		if !rule.Match(abstractSyntax) {
			continue
		}
		for _, ts := range candidates {
			for _, allowed := range rule.TransferSyntaxes {
				if ts == allowed {
					return ts, pdu.ResultAcceptance
				}
			}
		}
		return "", pdu.ResultTransferSyntaxesNotSupported
	}
	return "", pdu.ResultAbstractSyntaxNotSupported
}

// DefaultPolicy accepts verification and query/retrieve with the uncompressed
// syntaxes and every storage class with the broad storage set.
func DefaultPolicy() *RulePolicy {
	return NewRulePolicy(
		ForAbstractSyntax(types.VerificationSOPClass, types.UncompressedTransferSyntaxes()...),
		ForCategory(types.CategoryStorage, types.StorageTransferSyntaxes()...),
		ForCategory(types.CategoryQueryRetrieve, types.UncompressedTransferSyntaxes()...),
		ForCategory(types.CategoryWorklist, types.UncompressedTransferSyntaxes()...),
	)
}
