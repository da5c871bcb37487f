package evidence

import (
	"encoding/json"
	"fmt"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Budget limits. All byte limits count UTF-8 bytes, not characters.
const (
	MaxBudgetClaims      = 8
	MaxRefsPerClaim      = 4
	MaxTotalRefs         = 20
	MaxMetaBytes         = 16 * 1024
	MaxEvidenceTextBytes = 4 * 1024
)

// Budget failure reasons, surfaced as evidence_budget_exceeded.
const (
	BudgetMaxClaims        = "max_claims"
	BudgetMaxRefsPerClaim  = "max_refs_per_claim"
	BudgetMaxTotalRefs     = "max_total_refs"
	BudgetMaxMetaBytes     = "max_meta_bytes"
	BudgetMaxEvidenceBytes = "max_evidence_bytes"
)

// CheckBudget enforces the evidence budget on a parsed envelope meta.
func CheckBudget(meta *contracts.EnvelopeMeta, pack *contracts.EvidencePack) *contracts.GateError {
	if meta == nil {
		return nil
	}

	if len(meta.Claims) > MaxBudgetClaims {
		return budgetErr(BudgetMaxClaims, fmt.Sprintf("%d claims, limit %d", len(meta.Claims), MaxBudgetClaims))
	}

	totalRefs := 0
	for _, claim := range meta.Claims {
		if len(claim.EvidenceRefs) > MaxRefsPerClaim {
			return budgetErr(BudgetMaxRefsPerClaim,
				fmt.Sprintf("claim %s has %d refs, limit %d", claim.ClaimID, len(claim.EvidenceRefs), MaxRefsPerClaim))
		}
		totalRefs += len(claim.EvidenceRefs)
	}
	if totalRefs > MaxTotalRefs {
		return budgetErr(BudgetMaxTotalRefs, fmt.Sprintf("%d total refs, limit %d", totalRefs, MaxTotalRefs))
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return budgetErr(BudgetMaxMetaBytes, "meta not serializable")
	}
	if len(metaJSON) > MaxMetaBytes {
		return budgetErr(BudgetMaxMetaBytes, fmt.Sprintf("meta is %d bytes, limit %d", len(metaJSON), MaxMetaBytes))
	}

	if pack != nil {
		if n := referencedEvidenceBytes(meta, pack); n > MaxEvidenceTextBytes {
			return budgetErr(BudgetMaxEvidenceBytes,
				fmt.Sprintf("referenced evidence text is %d bytes, limit %d", n, MaxEvidenceTextBytes))
		}
	}
	return nil
}

// referencedEvidenceBytes sums the UTF-8 bytes of evidence text the claims
// actually reference, counting each distinct (evidence, span) once.
func referencedEvidenceBytes(meta *contracts.EnvelopeMeta, pack *contracts.EvidencePack) int {
	counted := make(map[[2]string]bool)
	total := 0
	for _, claim := range meta.Claims {
		for _, ref := range claim.EvidenceRefs {
			key := [2]string{ref.EvidenceID, ref.SpanID}
			if counted[key] {
				continue
			}
			counted[key] = true
			item := pack.Item(ref.EvidenceID)
			if item == nil {
				continue
			}
			if ref.SpanID != "" {
				for _, s := range item.Spans {
					if s.SpanID == ref.SpanID {
						total += len(s.Text)
						break
					}
				}
				continue
			}
			total += len(item.ExcerptText)
			for _, s := range item.Spans {
				total += len(s.Text)
			}
		}
	}
	return total
}

func budgetErr(reason, detail string) *contracts.GateError {
	return &contracts.GateError{
		Code:   contracts.ErrEvidenceBudgetExceeded,
		Reason: reason,
		Detail: detail,
	}
}
