package evidence

import (
	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Librarian reason codes, capped at librarianMaxReasons in the verdict.
const (
	reasonEmptyEvidenceID   = "empty_evidence_id"
	reasonUnknownEvidenceID = "unknown_evidence_id"
	reasonUnknownSpanID     = "unknown_span_id"
	reasonDuplicateRef      = "duplicate_ref"
	reasonClaimDropped      = "claim_dropped"
)

const (
	librarianVersion    = "v0"
	librarianMaxReasons = 6
)

// ApplyLibrarian prunes claim references in place and writes the verdict
// into meta.librarian_gate. It only applies to ghost-card envelopes; the
// caller checks display_hint. Applying it to its own output is a no-op.
func ApplyLibrarian(meta *contracts.EnvelopeMeta, pack *contracts.EvidencePack) *contracts.LibrarianGate {
	if meta == nil {
		return nil
	}

	total := len(meta.Claims)
	pruned := 0
	unsupported := 0
	var reasons []string
	addReason := func(r string) {
		if len(reasons) < librarianMaxReasons {
			reasons = append(reasons, r)
		}
	}

	var kept []contracts.MetaClaim
	for _, claim := range meta.Claims {
		seen := make(map[[2]string]bool, len(claim.EvidenceRefs))
		var refs []contracts.EvidenceRef
		for _, ref := range claim.EvidenceRefs {
			key := [2]string{ref.EvidenceID, ref.SpanID}
			switch {
			case ref.EvidenceID == "":
				pruned++
				addReason(reasonEmptyEvidenceID)
			case seen[key]:
				pruned++
				addReason(reasonDuplicateRef)
			case pack != nil && pack.Item(ref.EvidenceID) == nil:
				pruned++
				addReason(reasonUnknownEvidenceID)
			case pack != nil && ref.SpanID != "" && !pack.Item(ref.EvidenceID).HasSpan(ref.SpanID):
				pruned++
				addReason(reasonUnknownSpanID)
			default:
				seen[key] = true
				refs = append(refs, ref)
			}
		}
		if len(refs) == 0 {
			unsupported++
			addReason(reasonClaimDropped)
			continue
		}
		claim.EvidenceRefs = refs
		kept = append(kept, claim)
	}
	meta.Claims = kept

	verdict := "pass"
	switch {
	case unsupported > 0:
		verdict = "flag"
	case pruned > 0:
		verdict = "prune"
	}

	score := 1.0
	if total > 0 {
		score = 1.0 - float64(unsupported)/float64(total)
	}

	gate := &contracts.LibrarianGate{
		Version:           librarianVersion,
		PrunedRefs:        pruned,
		UnsupportedClaims: unsupported,
		SupportScore:      score,
		Verdict:           verdict,
		ReasonCodes:       reasons,
	}
	meta.LibrarianGate = gate
	return gate
}
