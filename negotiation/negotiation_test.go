package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/types"
)

func TestNegotiateDefaultPolicy(t *testing.T) {
	proposed := []pdu.PresentationContextRQ{
		{ID: 1, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
		{ID: 3, AbstractSyntax: types.CTImageStorage, TransferSyntaxes: []string{types.JPEG2000Lossless, types.ExplicitVRLittleEndian}},
		{ID: 5, AbstractSyntax: "1.2.3.4.5", TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
		{ID: 7, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{types.JPEGBaseline8Bit}},
		{ID: 9, AbstractSyntax: types.StudyRootQueryRetrieveInformationModelFind, TransferSyntaxes: []string{types.ExplicitVRLittleEndian}},
	}

	results := Negotiate(proposed, DefaultPolicy())
	require.Len(t, results, len(proposed))

	expected := []Result{
		{ID: 1, AbstractSyntax: types.VerificationSOPClass, TransferSyntax: types.ImplicitVRLittleEndian, Result: pdu.ResultAcceptance},
		{ID: 3, AbstractSyntax: types.CTImageStorage, TransferSyntax: types.JPEG2000Lossless, Result: pdu.ResultAcceptance},
		{ID: 5, AbstractSyntax: "1.2.3.4.5", Result: pdu.ResultAbstractSyntaxNotSupported},
		{ID: 7, AbstractSyntax: types.VerificationSOPClass, Result: pdu.ResultTransferSyntaxesNotSupported},
		{ID: 9, AbstractSyntax: types.StudyRootQueryRetrieveInformationModelFind, TransferSyntax: types.ExplicitVRLittleEndian, Result: pdu.ResultAcceptance},
	}
	assert.Equal(t, expected, results)
	assert.Equal(t, 3, CountAccepted(results))
}

func TestNegotiateIsDeterministic(t *testing.T) {
	proposed := []pdu.PresentationContextRQ{
		{ID: 1, AbstractSyntax: types.MRImageStorage, TransferSyntaxes: types.StorageTransferSyntaxes()},
		{ID: 3, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: types.UncompressedTransferSyntaxes()},
	}
	first := Negotiate(proposed, DefaultPolicy())
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Negotiate(proposed, DefaultPolicy()))
	}
}

func TestNegotiateProposerOrderWins(t *testing.T) {
	policy := NewRulePolicy(ForAny(types.ImplicitVRLittleEndian, types.ExplicitVRLittleEndian))
	proposed := []pdu.PresentationContextRQ{
		{ID: 1, AbstractSyntax: types.CTImageStorage, TransferSyntaxes: []string{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian}},
	}

	results := Negotiate(proposed, policy)
	assert.Equal(t, types.ExplicitVRLittleEndian, results[0].TransferSyntax)
}

func TestNegotiateMalformedInput(t *testing.T) {
	proposed := []pdu.PresentationContextRQ{
		{ID: 1, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{"not-a-uid"}},
		{ID: 2, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
		{ID: 1, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
		{ID: 5, AbstractSyntax: "1.02.3", TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
		{ID: 7, AbstractSyntax: types.VerificationSOPClass},
	}

	results := Negotiate(proposed, DefaultPolicy())
	assert.Equal(t, pdu.ResultTransferSyntaxesNotSupported, results[0].Result)
	assert.Equal(t, pdu.ResultNoReason, results[1].Result, "even ID")
	assert.Equal(t, pdu.ResultNoReason, results[2].Result, "duplicate ID")
	assert.Equal(t, pdu.ResultAbstractSyntaxNotSupported, results[3].Result)
	assert.Equal(t, pdu.ResultTransferSyntaxesNotSupported, results[4].Result)
	for _, r := range results {
		assert.Empty(t, r.TransferSyntax)
		assert.False(t, r.Accepted())
	}
}

func TestNegotiateDowngradesBadPolicyAnswer(t *testing.T) {
	proposed := []pdu.PresentationContextRQ{
		{ID: 1, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
	}

	tests := []struct {
		name   string
		answer string
	}{
		{"empty syntax", ""},
		{"syntax never proposed", types.ExplicitVRBigEndian},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := PolicyFunc(func(string, []string) (string, pdu.PresentationResult) {
				return tt.answer, pdu.ResultAcceptance
			})
			results := Negotiate(proposed, policy)
			assert.Equal(t, pdu.ResultNoReason, results[0].Result)
			assert.Empty(t, results[0].TransferSyntax)
		})
	}
}

func TestToACAndApply(t *testing.T) {
	proposed := []pdu.PresentationContextRQ{
		{ID: 1, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
		{ID: 3, AbstractSyntax: "1.2.3.4.5", TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
		{ID: 5, AbstractSyntax: types.CTImageStorage, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
	}
	acceptor := Negotiate(proposed, DefaultPolicy())
	ac := ToAC(acceptor)
	require.Len(t, ac, 3)
	assert.Equal(t, pdu.PresentationContextAC{ID: 3, Result: pdu.ResultAbstractSyntaxNotSupported}, ac[1])

	requestor := Apply(proposed, ac)
	assert.Equal(t, acceptor, requestor)
}

func TestApplyRejectsBogusAccept(t *testing.T) {
	proposed := []pdu.PresentationContextRQ{
		{ID: 1, AbstractSyntax: types.VerificationSOPClass, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
		{ID: 3, AbstractSyntax: types.CTImageStorage, TransferSyntaxes: []string{types.ImplicitVRLittleEndian}},
	}
	ac := []pdu.PresentationContextAC{
		{ID: 1, Result: pdu.ResultAcceptance, TransferSyntax: types.JPEGBaseline8Bit},
	}

	results := Apply(proposed, ac)
	assert.Equal(t, pdu.ResultNoReason, results[0].Result)
	assert.Equal(t, pdu.ResultNoReason, results[1].Result, "missing from AC")
	assert.Zero(t, CountAccepted(results))
}

func TestPropose(t *testing.T) {
	contexts, err := Propose([]string{types.VerificationSOPClass, types.CTImageStorage}, types.GetCommonTransferSyntaxes())
	require.NoError(t, err)
	require.Len(t, contexts, 2)
	assert.Equal(t, byte(1), contexts[0].ID)
	assert.Equal(t, byte(3), contexts[1].ID)
	assert.Equal(t, types.GetCommonTransferSyntaxes(), contexts[1].TransferSyntaxes)

	_, err = Propose(make([]string, MaxPresentationContexts+1), types.GetCommonTransferSyntaxes())
	assert.Error(t, err)

	_, err = Propose([]string{types.VerificationSOPClass}, nil)
	assert.Error(t, err)
}

func TestNegotiateAsyncOps(t *testing.T) {
	tests := []struct {
		name     string
		proposed *pdu.AsyncOperationsWindow
		local    *pdu.AsyncOperationsWindow
		expected *pdu.AsyncOperationsWindow
	}{
		{"absent proposal", nil, &pdu.AsyncOperationsWindow{MaxOpsInvoked: 8, MaxOpsPerformed: 8}, nil},
		{"acceptor synchronous", &pdu.AsyncOperationsWindow{MaxOpsInvoked: 8, MaxOpsPerformed: 8}, nil, nil},
		{"minimum wins", &pdu.AsyncOperationsWindow{MaxOpsInvoked: 8, MaxOpsPerformed: 2}, &pdu.AsyncOperationsWindow{MaxOpsInvoked: 4, MaxOpsPerformed: 4}, &pdu.AsyncOperationsWindow{MaxOpsInvoked: 4, MaxOpsPerformed: 2}},
		{"unlimited proposal", &pdu.AsyncOperationsWindow{MaxOpsInvoked: 0, MaxOpsPerformed: 0}, &pdu.AsyncOperationsWindow{MaxOpsInvoked: 5, MaxOpsPerformed: 3}, &pdu.AsyncOperationsWindow{MaxOpsInvoked: 5, MaxOpsPerformed: 3}},
		{"both unlimited", &pdu.AsyncOperationsWindow{}, &pdu.AsyncOperationsWindow{}, &pdu.AsyncOperationsWindow{}},
		{"collapses to default", &pdu.AsyncOperationsWindow{MaxOpsInvoked: 1, MaxOpsPerformed: 1}, &pdu.AsyncOperationsWindow{MaxOpsInvoked: 4, MaxOpsPerformed: 4}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NegotiateAsyncOps(tt.proposed, tt.local))
		})
	}
}

func TestLimits(t *testing.T) {
	invoked, performed := Limits(nil)
	assert.Equal(t, 1, invoked)
	assert.Equal(t, 1, performed)

	invoked, performed = Limits(&pdu.AsyncOperationsWindow{MaxOpsInvoked: 0, MaxOpsPerformed: 3})
	assert.Equal(t, 0, invoked)
	assert.Equal(t, 3, performed)
}

func TestNegotiateRoles(t *testing.T) {
	results := []Result{
		{ID: 1, AbstractSyntax: types.CTImageStorage, TransferSyntax: types.ImplicitVRLittleEndian, Result: pdu.ResultAcceptance},
		{ID: 3, AbstractSyntax: types.MRImageStorage, Result: pdu.ResultTransferSyntaxesNotSupported},
	}
	proposed := []pdu.RoleSelection{
		{SOPClassUID: types.CTImageStorage, SCURole: false, SCPRole: true},
		{SOPClassUID: types.MRImageStorage, SCURole: false, SCPRole: true},
	}

	roles := NegotiateRoles(proposed, results)
	assert.Equal(t, []pdu.RoleSelection{{SOPClassUID: types.CTImageStorage, SCPRole: true}}, roles)
	assert.Nil(t, NegotiateRoles(nil, results))
}

func TestRulePolicyFirstMatchingRuleWins(t *testing.T) {
	policy := NewRulePolicy(
		ForAbstractSyntax(types.CTImageStorage, types.ExplicitVRLittleEndian),
		ForCategory(types.CategoryStorage, types.ImplicitVRLittleEndian),
	)

	ts, result := policy.Accept(types.CTImageStorage, []string{types.ImplicitVRLittleEndian})
	assert.Equal(t, pdu.ResultTransferSyntaxesNotSupported, result)
	assert.Empty(t, ts)

	ts, result = policy.Accept(types.MRImageStorage, []string{types.ImplicitVRLittleEndian})
	assert.Equal(t, pdu.ResultAcceptance, result)
	assert.Equal(t, types.ImplicitVRLittleEndian, ts)

	_, result = policy.Accept(types.VerificationSOPClass, []string{types.ImplicitVRLittleEndian})
	assert.Equal(t, pdu.ResultAbstractSyntaxNotSupported, result)

	assert.Len(t, policy.Rules(), 2)
}
