package evidence

import (
	"fmt"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Binding failure reasons recorded in the evidence_binding trace.
const (
	BindingInvalid        = "invalid_binding"
	BindingNoPackForClaim = "claims_without_evidence"
)

// CheckBinding verifies that every claim reference resolves into the pack.
// Claims with no pack at all is its own failure class.
func CheckBinding(meta *contracts.EnvelopeMeta, pack *contracts.EvidencePack) *contracts.GateError {
	if meta == nil || len(meta.Claims) == 0 {
		return nil
	}
	if pack == nil {
		return &contracts.GateError{
			Code:   contracts.ErrClaimsWithoutEvidence,
			Reason: BindingNoPackForClaim,
			Detail: fmt.Sprintf("%d claim(s) with no evidence pack", len(meta.Claims)),
		}
	}
	for _, claim := range meta.Claims {
		for _, ref := range claim.EvidenceRefs {
			item := pack.Item(ref.EvidenceID)
			if item == nil {
				return &contracts.GateError{
					Code:   contracts.ErrEvidenceBindingFailed,
					Reason: BindingInvalid,
					Detail: fmt.Sprintf("claim %s references unknown evidence %q", claim.ClaimID, ref.EvidenceID),
				}
			}
			if ref.SpanID != "" && !item.HasSpan(ref.SpanID) {
				return &contracts.GateError{
					Code:   contracts.ErrEvidenceBindingFailed,
					Reason: BindingInvalid,
					Detail: fmt.Sprintf("claim %s references unknown span %q on %q", claim.ClaimID, ref.SpanID, ref.EvidenceID),
				}
			}
		}
	}
	return nil
}
